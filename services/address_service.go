package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"gorm.io/gorm"
)

// ErrCodeAddressNotFound is returned for an address the user does not own
const ErrCodeAddressNotFound = "ADDRESS_NOT_FOUND"

// AddressInput is a shipping address entered by a customer
type AddressInput struct {
	Name      string `json:"name" binding:"required,max=100"`
	Phone     string `json:"phone" binding:"required,phone"`
	Line1     string `json:"line1" binding:"required,max=200"`
	Line2     string `json:"line2" binding:"max=200"`
	City      string `json:"city" binding:"required,max=100"`
	State     string `json:"state" binding:"required,max=100"`
	Pincode   string `json:"pincode" binding:"required,pincode"`
	Country   string `json:"country"`
	IsDefault bool   `json:"is_default"`
}

// ToShippingAddress converts the input into an order snapshot
func (in AddressInput) ToShippingAddress(email string) models.ShippingAddress {
	return models.ShippingAddress{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   email,
		Line1:   strings.TrimSpace(in.Line1),
		Line2:   strings.TrimSpace(in.Line2),
		City:    strings.TrimSpace(in.City),
		State:   strings.TrimSpace(in.State),
		Pincode: strings.TrimSpace(in.Pincode),
		Country: strings.TrimSpace(in.Country),
	}
}

// AddressService manages saved addresses
type AddressService struct {
	db *gorm.DB
}

// NewAddressService creates an address service
func NewAddressService(db *gorm.DB) *AddressService {
	return &AddressService{db: db}
}

// List returns the user's addresses, default first
func (s *AddressService) List(ctx context.Context, userID uint) ([]models.Address, error) {
	var addresses []models.Address
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, id").
		Find(&addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// Create saves an address. The first address, or one marked default,
// becomes the only default.
func (s *AddressService) Create(ctx context.Context, userID uint, input AddressInput) (*models.Address, error) {
	snapshot := input.ToShippingAddress("")
	address := &models.Address{
		UserID:    userID,
		Name:      snapshot.Name,
		Phone:     snapshot.Phone,
		Line1:     snapshot.Line1,
		Line2:     snapshot.Line2,
		City:      snapshot.City,
		State:     snapshot.State,
		Pincode:   snapshot.Pincode,
		Country:   snapshot.Country,
		IsDefault: input.IsDefault,
	}
	if address.Country == "" {
		address.Country = "India"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count addresses: %w", err)
		}
		if count == 0 {
			address.IsDefault = true
		}
		if address.IsDefault && count > 0 {
			if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
				return fmt.Errorf("failed to reset default address: %w", err)
			}
		}
		return tx.Create(address).Error
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

// Delete removes one of the user's addresses. Orders keep their snapshot.
func (s *AddressService) Delete(ctx context.Context, userID, addressID uint) error {
	var address models.Address
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", addressID, userID).First(&address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError(ErrCodeAddressNotFound, "Address not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load address: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&address).Error; err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	return nil
}
