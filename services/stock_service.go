package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"gorm.io/gorm"
)

// Stock error codes
const (
	ErrCodeInsufficientStock = "INSUFFICIENT_STOCK"
	ErrCodeVariantNotFound   = "VARIANT_NOT_FOUND"
)

// DeductResult reports the outcome of a stock deduction. Exactly one of
// NewStock and NewBaseStock is set, depending on the variant's stock mode.
type DeductResult struct {
	VariantID    uint `json:"variant_id"`
	Deducted     int  `json:"deducted"`
	NewStock     *int `json:"new_stock,omitempty"`
	NewBaseStock *int `json:"new_base_stock,omitempty"`
}

// StockService owns every mutation of variant inventory.
type StockService struct {
	db *gorm.DB
}

// NewStockService creates a stock service on db
func NewStockService(db *gorm.DB) *StockService {
	return &StockService{db: db}
}

// WithTx returns a copy of the service bound to tx
func (s *StockService) WithTx(tx *gorm.DB) *StockService {
	return &StockService{db: tx}
}

// CalculatedStock returns the sellable quantity of a variant. Shared-pool
// variants divide the pool by their pack size; the result is never negative.
func CalculatedStock(v models.Variant) int {
	qty := v.Stock
	if v.IsShared() {
		qty = *v.BaseStock / v.PackSize()
	}
	if qty < 0 {
		return 0
	}
	return qty
}

// ApplyCalculatedStock fills the CalculatedStock field of every variant
func ApplyCalculatedStock(variants []models.Variant) {
	for i := range variants {
		variants[i].CalculatedStock = CalculatedStock(variants[i])
	}
}

// CheckAvailability fails with INSUFFICIENT_STOCK when quantity exceeds the
// variant's calculated stock. It does not reserve anything.
func CheckAvailability(v models.Variant, quantity int) error {
	if available := CalculatedStock(v); quantity > available {
		return utils.NewConflictError(ErrCodeInsufficientStock,
			fmt.Sprintf("Only %d left in stock for %s / %s", available, v.Color, v.Size))
	}
	return nil
}

// DeductStock removes quantity units of a variant from inventory.
//
// For shared-pool variants the pool shrinks by quantity * pack across every
// shared sibling of the same (product, color, size). The update is a single
// conditional statement, so concurrent buyers cannot drive the pool below zero:
// when the guard fails no row changes and INSUFFICIENT_STOCK is returned.
func (s *StockService) DeductStock(ctx context.Context, variantID uint, quantity int) (*DeductResult, error) {
	if quantity <= 0 {
		return nil, utils.NewValidationError("INVALID_QUANTITY", "Quantity must be greater than zero")
	}

	variant, err := s.findVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	if variant.IsShared() {
		units := quantity * variant.PackSize()
		res := db.Model(&models.Variant{}).
			Where("product_id = ? AND color = ? AND size = ? AND use_shared_stock = ? AND base_stock >= ?",
				variant.ProductID, variant.Color, variant.Size, true, units).
			Update("base_stock", gorm.Expr("base_stock - ?", units))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to deduct shared stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, insufficientStock(variant)
		}

		refreshed, err := s.findVariant(ctx, variantID)
		if err != nil {
			return nil, err
		}
		return &DeductResult{VariantID: variantID, Deducted: units, NewBaseStock: refreshed.BaseStock}, nil
	}

	res := db.Model(&models.Variant{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to deduct stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, insufficientStock(variant)
	}

	refreshed, err := s.findVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	newStock := refreshed.Stock
	return &DeductResult{VariantID: variantID, Deducted: quantity, NewStock: &newStock}, nil
}

// RestoreStock puts quantity units of a variant back, mirroring DeductStock.
func (s *StockService) RestoreStock(ctx context.Context, variantID uint, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	variant, err := s.findVariant(ctx, variantID)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	if variant.IsShared() {
		units := quantity * variant.PackSize()
		return db.Model(&models.Variant{}).
			Where("product_id = ? AND color = ? AND size = ? AND use_shared_stock = ? AND base_stock IS NOT NULL",
				variant.ProductID, variant.Color, variant.Size, true).
			Update("base_stock", gorm.Expr("base_stock + ?", units)).Error
	}

	return db.Model(&models.Variant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", quantity)).Error
}

// UpdateBaseStock overwrites the shared pool of a (product, color, size) group.
// Independent variants of the same group are left alone. It returns the
// number of pack variants that now read the new pool.
func (s *StockService) UpdateBaseStock(ctx context.Context, productID uint, color, size string, newBaseStock int) (int64, error) {
	if newBaseStock < 0 {
		return 0, utils.NewValidationError("INVALID_STOCK", "Base stock cannot be negative")
	}
	color, size = NormalizeColor(color), NormalizeSize(size)

	res := s.db.WithContext(ctx).Model(&models.Variant{}).
		Where("product_id = ? AND color = ? AND size = ? AND use_shared_stock = ?", productID, color, size, true).
		Update("base_stock", newBaseStock)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update base stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, utils.NewNotFoundError("SHARED_POOL_NOT_FOUND",
			fmt.Sprintf("No shared-stock variants for %s / %s", color, size))
	}
	return res.RowsAffected, nil
}

func (s *StockService) findVariant(ctx context.Context, variantID uint) (*models.Variant, error) {
	var variant models.Variant
	if err := s.db.WithContext(ctx).First(&variant, variantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError(ErrCodeVariantNotFound, "Variant not found")
		}
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}
	return &variant, nil
}

func insufficientStock(v *models.Variant) error {
	return utils.NewConflictError(ErrCodeInsufficientStock,
		fmt.Sprintf("Insufficient stock for %s / %s (pack of %d)", v.Color, v.Size, v.PackSize()))
}
