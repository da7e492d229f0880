package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminTokenAudience is the audience of every admin access token
const AdminTokenAudience = config.AdminTokenAudience

// AdminClaims are the claims of an admin access token
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthSettings configures the auth service
type AuthSettings struct {
	SessionTTL     time.Duration
	OTPTTL         time.Duration
	AdminJWTSecret string
	AdminJWTIssuer string
	AdminTokenTTL  time.Duration
}

// AuthService handles customer OTP login, sessions and admin credentials
type AuthService struct {
	db       *gorm.DB
	otp      OTPStore
	mailer   Mailer
	settings AuthSettings
	now      func() time.Time
}

var otpStoreInstance OTPStore

// InitOTPStore uses Redis when REDIS_URL is set and an in-memory store otherwise
func InitOTPStore(ctx context.Context) (OTPStore, error) {
	cfg := config.GetConfig()
	if cfg.RedisURL == "" {
		store := NewMemoryOTPStore(cfg.OTPMaxAttempts)
		store.StartSweeper(ctx, time.Minute)
		otpStoreInstance = store
		return otpStoreInstance, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	otpStoreInstance = NewRedisOTPStore(client, cfg.OTPMaxAttempts)
	return otpStoreInstance, nil
}

// GetOTPStore returns the initialized OTP store
func GetOTPStore() OTPStore {
	return otpStoreInstance
}

// SetOTPStore sets the OTP store (primarily for testing)
func SetOTPStore(store OTPStore) {
	otpStoreInstance = store
}

// AuthSettingsFromConfig extracts the auth settings from cfg
func AuthSettingsFromConfig(cfg *config.Config) AuthSettings {
	return AuthSettings{
		SessionTTL:     cfg.SessionTTL,
		OTPTTL:         cfg.OTPTTL,
		AdminJWTSecret: cfg.AdminJWTSecret,
		AdminJWTIssuer: cfg.AdminJWTIssuer,
		AdminTokenTTL:  cfg.AdminTokenTTL,
	}
}

// NewAuthService creates an auth service
func NewAuthService(db *gorm.DB, otp OTPStore, mailer Mailer, settings AuthSettings) *AuthService {
	return &AuthService{db: db, otp: otp, mailer: mailer, settings: settings, now: time.Now}
}

// NormalizeEmail lower-cases and validates an email address
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", utils.NewValidationError("INVALID_EMAIL", "A valid email address is required")
	}
	return email, nil
}

// RequestOTP generates a login code for email and mails it
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	if err := s.otp.Save(ctx, email, code, s.settings.OTPTTL); err != nil {
		return err
	}

	SendAsync(s.mailer, OTPMessage(email, code, s.settings.OTPTTL))
	return nil
}

// VerifyOTP checks the code and opens a session, creating the customer
// account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*models.Session, *models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.otp.Verify(ctx, email, strings.TrimSpace(code))
	if errors.Is(err, ErrOTPAttemptsExceeded) {
		return nil, nil, utils.NewAuthError("OTP_ATTEMPTS_EXCEEDED", "Too many attempts. Please request a new code.")
	}
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, utils.NewAuthError("INVALID_OTP", "Invalid or expired code")
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Email: email, Role: models.RoleCustomer}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create user: %w", err)
		}
		logger.Info("Customer account created", zap.Uint("user_id", user.ID))
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	session := models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.settings.SessionTTL),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &session, &user, nil
}

// Logout deletes the session with token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AdminLogin checks admin credentials and issues an access token
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (string, time.Time, error) {
	invalid := utils.NewAuthError("INVALID_CREDENTIALS", "Invalid email or password")

	email, err := NormalizeEmail(email)
	if err != nil {
		return "", time.Time{}, invalid
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ? AND role = ?", email, models.RoleAdmin).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, invalid
		}
		return "", time.Time{}, fmt.Errorf("failed to load admin: %w", err)
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", time.Time{}, invalid
	}

	return IssueAdminToken(s.settings, &user, s.now())
}

// CreateAdmin creates an admin account, or promotes and resets the password of
// an existing user with the same email.
func (s *AuthService) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 12 {
		return nil, utils.NewValidationError("WEAK_PASSWORD", "Admin passwords must be at least 12 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Name: name, Email: email, Role: models.RoleAdmin, PasswordHash: hash}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create admin: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	default:
		if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
			"name":          name,
			"role":          models.RoleAdmin,
			"password_hash": hash,
		}).Error; err != nil {
			return nil, fmt.Errorf("failed to promote user: %w", err)
		}
	}
	return &user, nil
}

// HashPassword hashes password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// IssueAdminToken signs an HS256 access token for user
func IssueAdminToken(settings AuthSettings, user *models.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(settings.AdminTokenTTL)
	claims := AdminClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    settings.AdminJWTIssuer,
			Audience:  jwt.ClaimStrings{AdminTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(settings.AdminJWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return token, expiresAt, nil
}
