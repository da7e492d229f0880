package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a catalog entry grouping purchasable variants
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"index" json:"category"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	ImageKey    *string        `json:"-"`                              // storage key of the main image
	ImageURL    string         `gorm:"-" json:"image_url,omitempty"`   // computed on read
	Variants    []Variant      `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	Features    []Feature      `gorm:"foreignKey:ProductID" json:"features,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// Feature is a bullet point on the product page
type Feature struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProductID uint   `gorm:"not null;index" json:"product_id"`
	Text      string `gorm:"not null" json:"text"`
	Position  int    `gorm:"not null;default:0" json:"position"`
}

// TableName specifies the table name for the Feature model
func (Feature) TableName() string {
	return "features"
}

// Variant is a purchasable (size, color, pack) unit of a product.
//
// With UseSharedStock and BaseStock set, every pack size of the same
// (product, color, size) draws on one physical pool and the sellable quantity
// of a pack-of-N variant is BaseStock / N. Otherwise Stock is used as is.
type Variant struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProductID       uint      `gorm:"not null;index:idx_variant_pool" json:"product_id"`
	Product         *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Size            string    `gorm:"not null;index:idx_variant_pool" json:"size"`
	Color           string    `gorm:"not null;index:idx_variant_pool" json:"color"`
	Pack            int       `gorm:"not null;default:1" json:"pack"`
	SKU             string    `gorm:"index" json:"sku"`
	Price           int64     `gorm:"not null" json:"price"` // paise
	Stock           int       `gorm:"not null;default:0" json:"stock"`
	BaseStock       *int      `json:"base_stock"`
	UseSharedStock  bool      `gorm:"not null;default:false" json:"use_shared_stock"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	CalculatedStock int       `gorm:"-" json:"calculated_stock"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Variant model
func (Variant) TableName() string {
	return "variants"
}

// PackSize returns Pack, treating unset values as a single unit.
func (v Variant) PackSize() int {
	if v.Pack < 1 {
		return 1
	}
	return v.Pack
}

// IsShared reports whether the variant draws from the shared pool.
func (v Variant) IsShared() bool {
	return v.UseSharedStock && v.BaseStock != nil
}
