package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"gorm.io/gorm"
)

// CouponReason says why a coupon was rejected
type CouponReason string

const (
	CouponNotFound     CouponReason = "NOT_FOUND"
	CouponInactive     CouponReason = "INACTIVE"
	CouponExpired      CouponReason = "EXPIRED"
	CouponLimitReached CouponReason = "LIMIT_REACHED"
	CouponBelowMinimum CouponReason = "BELOW_MINIMUM"
	CouponAlreadyUsed  CouponReason = "ALREADY_USED"
)

// CouponError is returned when a coupon cannot be applied
type CouponError struct {
	Reason  CouponReason
	Message string
}

func (e *CouponError) Error() string {
	return e.Message
}

// Code returns the machine-readable error code for responses
func (e *CouponError) Code() string {
	return "COUPON_" + string(e.Reason)
}

// CouponResult is the outcome of a successful validation
type CouponResult struct {
	Valid    bool           `json:"valid"`
	Code     string         `json:"code"`
	Discount int64          `json:"discount"`
	Message  string         `json:"message"`
	Coupon   *models.Coupon `json:"-"`
}

// CreateCouponInput describes a new coupon
type CreateCouponInput struct {
	Code           string     `json:"code" binding:"required,min=3,max=32"`
	DiscountType   string     `json:"discount_type" binding:"required,oneof=PERCENTAGE FIXED"`
	DiscountValue  int64      `json:"discount_value" binding:"required,gt=0"`
	MinOrderValue  int64      `json:"min_order_value" binding:"gte=0"`
	MaxDiscount    *int64     `json:"max_discount" binding:"omitempty,gt=0"`
	UsageLimit     *int       `json:"usage_limit" binding:"omitempty,gt=0"`
	OneTimePerUser bool       `json:"one_time_per_user"`
	ExpiryDate     *time.Time `json:"expiry_date"`
}

// CouponService validates coupons and keeps their usage ledger
type CouponService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCouponService creates a coupon service on db
func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{db: db, now: time.Now}
}

// WithTx returns a copy of the service bound to tx
func (s *CouponService) WithTx(tx *gorm.DB) *CouponService {
	return &CouponService{db: tx, now: s.now}
}

// NormalizeCode trims and upper-cases a coupon code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate runs the coupon checks in order and returns the discount the coupon
// grants on subtotal. The first failing check wins.
func (s *CouponService) Validate(ctx context.Context, code string, userID uint, subtotal int64) (*CouponResult, error) {
	code = NormalizeCode(code)

	var coupon models.Coupon
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &CouponError{Reason: CouponNotFound, Message: "Invalid coupon code"}
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if !coupon.IsActive {
		return nil, &CouponError{Reason: CouponInactive, Message: "This coupon is no longer active"}
	}

	if coupon.ExpiryDate != nil && !coupon.ExpiryDate.After(s.now()) {
		return nil, &CouponError{Reason: CouponExpired, Message: "This coupon has expired"}
	}

	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return nil, &CouponError{Reason: CouponLimitReached, Message: "This coupon has reached its usage limit"}
	}

	if subtotal < coupon.MinOrderValue {
		return nil, &CouponError{
			Reason:  CouponBelowMinimum,
			Message: fmt.Sprintf("Minimum order value of ₹%s required", utils.FormatMajor(coupon.MinOrderValue)),
		}
	}

	if coupon.OneTimePerUser {
		var used int64
		if err := s.db.WithContext(ctx).Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
			Count(&used).Error; err != nil {
			return nil, fmt.Errorf("failed to check coupon usage: %w", err)
		}
		if used > 0 {
			return nil, &CouponError{Reason: CouponAlreadyUsed, Message: "You have already used this coupon"}
		}
	}

	discount := CalculateDiscount(coupon, subtotal)
	return &CouponResult{
		Valid:    true,
		Code:     coupon.Code,
		Discount: discount,
		Message:  fmt.Sprintf("Coupon applied: ₹%s off", utils.FormatMajor(discount)),
		Coupon:   &coupon,
	}, nil
}

// CalculateDiscount returns the discount in paise, always within [0, subtotal].
// Percentage discounts are floored and capped by MaxDiscount when set.
func CalculateDiscount(coupon models.Coupon, subtotal int64) int64 {
	if subtotal <= 0 || coupon.DiscountValue <= 0 {
		return 0
	}

	var discount int64
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal * coupon.DiscountValue / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	case models.DiscountTypeFixed:
		discount = coupon.DiscountValue
	default:
		return 0
	}

	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// RecordUsage records that coupon was applied to order and bumps its usage
// count. Repeated calls for the same (coupon, order) are no-ops; the returned
// bool reports whether a new usage was written. The usage limit and the
// one-time-per-user rule are enforced again here and reported as a
// *CouponError, leaving nothing written.
func (s *CouponService) RecordUsage(ctx context.Context, couponID, orderID, userID uint, amount int64) (bool, error) {
	recorded := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND order_id = ?", couponID, orderID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check coupon usage: %w", err)
		}
		if existing > 0 {
			return nil
		}

		var coupon models.Coupon
		if err := tx.First(&coupon, couponID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &CouponError{Reason: CouponNotFound, Message: "Invalid coupon code"}
			}
			return fmt.Errorf("failed to load coupon: %w", err)
		}

		if coupon.OneTimePerUser {
			var used int64
			if err := tx.Model(&models.CouponUsage{}).
				Where("coupon_id = ? AND user_id = ?", couponID, userID).
				Count(&used).Error; err != nil {
				return fmt.Errorf("failed to check coupon usage: %w", err)
			}
			if used > 0 {
				return &CouponError{Reason: CouponAlreadyUsed, Message: "You have already used this coupon"}
			}
		}

		res := tx.Model(&models.Coupon{}).
			Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to increment coupon usage: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &CouponError{Reason: CouponLimitReached, Message: "This coupon has reached its usage limit"}
		}

		usage := models.CouponUsage{CouponID: couponID, OrderID: orderID, UserID: userID, DiscountAmount: amount}
		if err := tx.Create(&usage).Error; err != nil {
			return fmt.Errorf("failed to record coupon usage: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// HasOpenOrder reports whether userID has an unpaid order carrying code
func (s *CouponService) HasOpenOrder(ctx context.Context, code string, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND coupon_code = ? AND status = ?", userID, NormalizeCode(code), models.OrderStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open orders: %w", err)
	}
	return count > 0, nil
}

// ReleaseUsage removes the usages recorded for an order and gives the count
// back to each coupon. Used when a confirmed order is cancelled.
func (s *CouponService) ReleaseUsage(ctx context.Context, orderID uint) error {
	db := s.db.WithContext(ctx)

	var usages []models.CouponUsage
	if err := db.Where("order_id = ?", orderID).Find(&usages).Error; err != nil {
		return fmt.Errorf("failed to load coupon usage: %w", err)
	}

	for _, usage := range usages {
		if err := db.Delete(&models.CouponUsage{}, usage.ID).Error; err != nil {
			return fmt.Errorf("failed to release coupon usage: %w", err)
		}
		if err := db.Model(&models.Coupon{}).
			Where("id = ? AND usage_count > 0", usage.CouponID).
			UpdateColumn("usage_count", gorm.Expr("usage_count - 1")).Error; err != nil {
			return fmt.Errorf("failed to decrement coupon usage: %w", err)
		}
	}
	return nil
}

// FindByCode loads a coupon regardless of its active flag
func (s *CouponService) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := s.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("COUPON_NOT_FOUND", "Coupon not found")
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &coupon, nil
}

// Create stores a new coupon
func (s *CouponService) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, utils.NewValidationError("INVALID_COUPON", "Coupon code is required")
	}
	if input.DiscountType == models.DiscountTypePercentage && input.DiscountValue > 100 {
		return nil, utils.NewValidationError("INVALID_COUPON", "Percentage discount cannot exceed 100")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check coupon code: %w", err)
	}
	if count > 0 {
		return nil, utils.NewConflictError("COUPON_EXISTS", fmt.Sprintf("Coupon %s already exists", code))
	}

	coupon := models.Coupon{
		Code:           code,
		DiscountType:   input.DiscountType,
		DiscountValue:  input.DiscountValue,
		MinOrderValue:  input.MinOrderValue,
		MaxDiscount:    input.MaxDiscount,
		UsageLimit:     input.UsageLimit,
		OneTimePerUser: input.OneTimePerUser,
		ExpiryDate:     input.ExpiryDate,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(&coupon).Error; err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return &coupon, nil
}

// List returns all coupons, newest first
func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

// Deactivate switches a coupon off. Usage history is kept.
func (s *CouponService) Deactivate(ctx context.Context, id uint) (*models.Coupon, error) {
	res := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to deactivate coupon: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewNotFoundError("COUPON_NOT_FOUND", "Coupon not found")
	}

	var coupon models.Coupon
	if err := s.db.WithContext(ctx).First(&coupon, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	return &coupon, nil
}
