package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthSettings = AuthSettings{
	SessionTTL:     24 * time.Hour,
	OTPTTL:         10 * time.Minute,
	AdminJWTSecret: "test-admin-secret-that-is-32-bytes!",
	AdminJWTIssuer: "storefront-api-test",
	AdminTokenTTL:  time.Hour,
}

// fixedOTPStore accepts a single known code
type fixedOTPStore struct {
	saved map[string]string
}

func (f *fixedOTPStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	f.saved[key] = code
	return nil
}

func (f *fixedOTPStore) Verify(ctx context.Context, key, code string) (bool, error) {
	if f.saved[key] == code {
		delete(f.saved, key)
		return true, nil
	}
	return false, nil
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Shopper@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "shopper@example.com", email)

	for _, bad := range []string{"", "not-an-email", "Name <a@example.com>"} {
		_, err := NormalizeEmail(bad)
		assert.True(t, utils.IsCode(err, "INVALID_EMAIL"), bad)
	}
}

func TestOTPLoginFlow(t *testing.T) {
	db := setupTestDB(t)
	store := &fixedOTPStore{saved: map[string]string{}}
	mailer := NewMockMailer()
	svc := NewAuthService(db, store, mailer, testAuthSettings)
	ctx := context.Background()

	require.NoError(t, svc.RequestOTP(ctx, "New@Example.com"))
	code := store.saved["new@example.com"]
	require.Len(t, code, 6)
	assert.Eventually(t, func() bool { return len(mailer.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, mailer.Sent()[0].Body, code)

	_, _, err := svc.VerifyOTP(ctx, "new@example.com", "wrong")
	assert.True(t, utils.IsCode(err, "INVALID_OTP"))

	require.NoError(t, svc.RequestOTP(ctx, "new@example.com"))
	session, user, err := svc.VerifyOTP(ctx, "new@example.com", store.saved["new@example.com"])
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.Equal(t, user.ID, session.UserID)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), session.ExpiresAt, time.Minute)

	// Second login reuses the account
	require.NoError(t, svc.RequestOTP(ctx, "new@example.com"))
	_, again, err := svc.VerifyOTP(ctx, "new@example.com", store.saved["new@example.com"])
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	require.NoError(t, svc.Logout(ctx, session.Token))
	var count int64
	db.Model(&models.Session{}).Where("token = ?", session.Token).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestVerifyOTPAttemptsExceeded(t *testing.T) {
	db := setupTestDB(t)
	store := NewMemoryOTPStore(1)
	svc := NewAuthService(db, store, NewMockMailer(), testAuthSettings)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a@example.com", "123456", time.Minute))
	_, _, err := svc.VerifyOTP(ctx, "a@example.com", "000000")
	assert.True(t, utils.IsCode(err, "INVALID_OTP"))

	_, _, err = svc.VerifyOTP(ctx, "a@example.com", "123456")
	assert.True(t, utils.IsCode(err, "OTP_ATTEMPTS_EXCEEDED"))
}

func TestPurgeExpiredSessions(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "a@example.com")
	require.NoError(t, db.Create(&models.Session{Token: "old", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.Session{Token: "new", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}).Error)

	purged, err := NewAuthService(db, nil, nil, testAuthSettings).PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAdminLogin(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, nil, nil, testAuthSettings)
	ctx := context.Background()

	_, err := svc.CreateAdmin(ctx, "Ops", "ops@example.com", "short")
	assert.True(t, utils.IsCode(err, "WEAK_PASSWORD"))

	admin, err := svc.CreateAdmin(ctx, "Ops", "ops@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NotEqual(t, "correct horse battery", admin.PasswordHash)

	token, expiresAt, err := svc.AdminLogin(ctx, "OPS@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	parsed, err := jwt.ParseWithClaims(token, &AdminClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return []byte(testAuthSettings.AdminJWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience(AdminTokenAudience), jwt.WithIssuer("storefront-api-test"))
	require.NoError(t, err)
	claims := parsed.Claims.(*AdminClaims)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, _, err = svc.AdminLogin(ctx, "ops@example.com", "wrong password")
	assert.True(t, utils.IsCode(err, "INVALID_CREDENTIALS"))

	// Customers cannot log in as admins
	createUser(t, db, "shopper@example.com")
	_, _, err = svc.AdminLogin(ctx, "shopper@example.com", "")
	assert.True(t, utils.IsCode(err, "INVALID_CREDENTIALS"))
}

func TestCreateAdminPromotesExistingUser(t *testing.T) {
	db := setupTestDB(t)
	existing := createUser(t, db, "owner@example.com")
	svc := NewAuthService(db, nil, nil, testAuthSettings)

	admin, err := svc.CreateAdmin(context.Background(), "Owner", "owner@example.com", "a-long-enough-password")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, admin.ID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, existing.ID).Error)
	assert.Equal(t, models.RoleAdmin, reloaded.Role)
	assert.NotEmpty(t, reloaded.PasswordHash)
}
