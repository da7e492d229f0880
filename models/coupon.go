package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon discount types
const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// Coupon is a discount rule. Code is stored upper-cased; DiscountValue is a
// percentage for PERCENTAGE coupons and paise for FIXED ones.
type Coupon struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Code           string         `gorm:"uniqueIndex;not null" json:"code"`
	DiscountType   string         `gorm:"not null" json:"discount_type"`
	DiscountValue  int64          `gorm:"not null" json:"discount_value"`
	MinOrderValue  int64          `gorm:"not null;default:0" json:"min_order_value"`
	MaxDiscount    *int64         `json:"max_discount"`
	UsageLimit     *int           `json:"usage_limit"`
	UsageCount     int            `gorm:"not null;default:0" json:"usage_count"`
	OneTimePerUser bool           `gorm:"not null;default:false" json:"one_time_per_user"`
	ExpiryDate     *time.Time     `json:"expiry_date"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Coupon model
func (Coupon) TableName() string {
	return "coupons"
}

// CouponUsage is an append-only record of a coupon applied to a paid order
type CouponUsage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CouponID       uint      `gorm:"not null;uniqueIndex:idx_coupon_usage_order;index:idx_coupon_usage_user" json:"coupon_id"`
	OrderID        uint      `gorm:"not null;uniqueIndex:idx_coupon_usage_order" json:"order_id"`
	UserID         uint      `gorm:"not null;index:idx_coupon_usage_user" json:"user_id"`
	DiscountAmount int64     `gorm:"not null" json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for the CouponUsage model
func (CouponUsage) TableName() string {
	return "coupon_usages"
}
