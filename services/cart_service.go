package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrCodeCartItemNotFound is returned for a cart line the user does not own
const ErrCodeCartItemNotFound = "CART_ITEM_NOT_FOUND"

// maxLineQuantity caps a single cart line
const maxLineQuantity = 20

// AddCartItemInput adds a variant to the cart
type AddCartItemInput struct {
	VariantID      uint     `json:"variant_id" binding:"required"`
	Quantity       int      `json:"quantity" binding:"required,min=1,max=20"`
	SelectedColors []string `json:"selected_colors" binding:"omitempty,max=12,dive,required"`
}

// Cart is a user's cart with its running subtotal in paise
type Cart struct {
	Items     []models.CartItem `json:"items"`
	Subtotal  int64             `json:"subtotal"`
	ItemCount int               `json:"item_count"`
}

// CartService manages server-side carts
type CartService struct {
	db *gorm.DB
}

// NewCartService creates a cart service
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// GetCart returns the user's cart with live prices and stock
func (s *CartService) GetCart(ctx context.Context, userID uint) (*Cart, error) {
	var items []models.CartItem
	err := s.db.WithContext(ctx).
		Preload("Variant.Product").
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := &Cart{Items: items}
	for i := range cart.Items {
		item := &cart.Items[i]
		if item.Variant == nil {
			continue
		}
		item.Variant.CalculatedStock = CalculatedStock(*item.Variant)
		cart.Subtotal += item.Variant.Price * int64(item.Quantity)
		cart.ItemCount += item.Quantity
	}
	return cart, nil
}

// AddItem adds quantity of a variant to the cart. Adding a variant already in
// the cart increases its quantity; new colour choices replace the old ones.
func (s *CartService) AddItem(ctx context.Context, userID uint, input AddCartItemInput) (*Cart, error) {
	if input.Quantity <= 0 {
		return nil, utils.NewValidationError("INVALID_QUANTITY", "Quantity must be greater than zero")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variant models.Variant
		if err := tx.Preload("Product").First(&variant, input.VariantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError(ErrCodeVariantNotFound, "Variant not found")
			}
			return fmt.Errorf("failed to load variant: %w", err)
		}
		if !variant.IsActive || variant.Product == nil || !variant.Product.IsActive {
			return utils.NewConflictError(ErrCodeVariantUnavailable, "This item is no longer available")
		}
		if err := ValidatePackColors(variant, input.SelectedColors); err != nil {
			return err
		}

		var line models.CartItem
		err := tx.Where("user_id = ? AND variant_id = ?", userID, variant.ID).First(&line).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load cart line: %w", err)
		}

		quantity := line.Quantity + input.Quantity
		if quantity > maxLineQuantity {
			return utils.NewValidationError("INVALID_QUANTITY", fmt.Sprintf("At most %d of an item per order", maxLineQuantity))
		}
		if err := CheckAvailability(variant, quantity); err != nil {
			return err
		}

		if line.ID == 0 {
			line = models.CartItem{UserID: userID, VariantID: variant.ID}
		}
		line.Quantity = quantity
		if len(input.SelectedColors) > 0 {
			line.SelectedColors = datatypes.JSONSlice[string](input.SelectedColors)
		}
		return tx.Save(&line).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// UpdateQuantity sets the quantity of a cart line; zero removes it
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID uint, quantity int) (*Cart, error) {
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	if quantity < 0 || quantity > maxLineQuantity {
		return nil, utils.NewValidationError("INVALID_QUANTITY", fmt.Sprintf("Quantity must be between 0 and %d", maxLineQuantity))
	}

	var line models.CartItem
	err := s.db.WithContext(ctx).Preload("Variant").Where("id = ? AND user_id = ?", itemID, userID).First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeCartItemNotFound, "Cart item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart line: %w", err)
	}
	if line.Variant != nil {
		if err := CheckAvailability(*line.Variant, quantity); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Model(&line).Update("quantity", quantity).Error; err != nil {
		return nil, fmt.Errorf("failed to update cart line: %w", err)
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a cart line
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uint) (*Cart, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", itemID, userID).Delete(&models.CartItem{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to remove cart line: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewNotFoundError(ErrCodeCartItemNotFound, "Cart item not found")
	}
	return s.GetCart(ctx, userID)
}

// Clear empties the user's cart
func (s *CartService) Clear(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
