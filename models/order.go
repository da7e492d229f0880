package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// Payment statuses and methods
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"

	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"
)

// Order is the record of a checkout. All money fields are paise.
type Order struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	OrderNumber      string         `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	User             *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status           string         `gorm:"not null;index;default:'PENDING'" json:"status"`
	PaymentStatus    string         `gorm:"not null;default:'PENDING'" json:"payment_status"`
	PaymentMethod    string         `gorm:"not null" json:"payment_method"`
	Subtotal         int64          `gorm:"not null" json:"subtotal"`
	Shipping         int64          `gorm:"not null" json:"shipping"`
	Tax              int64          `gorm:"not null" json:"tax"`
	Discount         int64          `gorm:"not null;default:0" json:"discount"`
	Total            int64          `gorm:"not null" json:"total"`
	AddressID        *uint          `json:"address_id,omitempty"`
	Address          *Address       `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	ShippingAddress  string         `gorm:"type:text" json:"shipping_address"` // serialized ShippingAddress
	CouponCode       *string        `json:"coupon_code"`
	GatewayOrderID   *string        `gorm:"uniqueIndex" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string        `json:"gateway_payment_id,omitempty"`
	Items            []OrderItem    `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Shipment         *Shipment      `gorm:"foreignKey:OrderID" json:"shipment,omitempty"`
	ConfirmedAt      *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// OrderItem is a line of an order. Price is captured at order time and never
// recomputed from the live variant.
type OrderItem struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	OrderID        uint                        `gorm:"not null;index" json:"order_id"`
	VariantID      uint                        `gorm:"not null;index" json:"variant_id"`
	Variant        *Variant                    `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	Quantity       int                         `gorm:"not null" json:"quantity"`
	Price          int64                       `gorm:"not null" json:"price"`
	Subtotal       int64                       `gorm:"not null" json:"subtotal"`
	SelectedColors datatypes.JSONSlice[string] `json:"selected_colors,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// ShippingAddress is the address snapshot serialized onto an order.
//
// PackColors is the legacy location of per-variant colour choices for
// multi-pack variants, keyed by variant id. New orders store them on
// OrderItem.SelectedColors instead.
type ShippingAddress struct {
	Name       string              `json:"name"`
	Phone      string              `json:"phone"`
	Email      string              `json:"email,omitempty"`
	Line1      string              `json:"line1"`
	Line2      string              `json:"line2,omitempty"`
	City       string              `json:"city"`
	State      string              `json:"state"`
	Pincode    string              `json:"pincode"`
	Country    string              `json:"country,omitempty"`
	PackColors map[string][]string `json:"pack_colors,omitempty"`
}

// Usable reports whether the address has the fields a carrier needs.
func (a ShippingAddress) Usable() bool {
	return a.Name != "" && a.Phone != "" && a.Line1 != "" && a.City != "" && a.Pincode != ""
}
