package models

import (
	"time"

	"gorm.io/datatypes"
)

// CartItem is a line in a user's server-side cart
type CartItem struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	UserID         uint                        `gorm:"not null;uniqueIndex:idx_cart_user_variant" json:"user_id"`
	VariantID      uint                        `gorm:"not null;uniqueIndex:idx_cart_user_variant" json:"variant_id"`
	Variant        *Variant                    `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	Quantity       int                         `gorm:"not null" json:"quantity"`
	SelectedColors datatypes.JSONSlice[string] `json:"selected_colors,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName specifies the table name for the CartItem model
func (CartItem) TableName() string {
	return "cart_items"
}
