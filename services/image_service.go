package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImageService manages the main image of each product
type ImageService struct {
	db    *gorm.DB
	store ObjectStore
}

// NewImageService creates an image service over store
func NewImageService(db *gorm.DB, store ObjectStore) *ImageService {
	return &ImageService{db: db, store: store}
}

// Upload validates fileHeader, stores it and makes it the product's image.
// The previous image is removed once the product points at the new one.
func (s *ImageService) Upload(ctx context.Context, productID uint, fileHeader *multipart.FileHeader) (*models.Product, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return nil, err
	}

	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError(ErrCodeProductNotFound, "Product not found")
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	key := utils.ImageKey(product.Slug, fileHeader.Filename)
	if err := s.store.Put(ctx, key, fileHeader); err != nil {
		logger.Report("Failed to store product image", err, zap.Uint("product_id", productID))
		return nil, utils.NewUpstreamError("STORAGE_ERROR", "Failed to store the image", nil, err)
	}

	if err := s.db.WithContext(ctx).Model(&product).Update("image_key", key).Error; err != nil {
		s.deleteQuietly(ctx, key)
		return nil, fmt.Errorf("failed to save image key: %w", err)
	}

	if previous := product.ImageKey; previous != nil && *previous != "" && *previous != key {
		s.deleteQuietly(ctx, *previous)
	}

	product.ImageKey = &key
	s.Resolve(ctx, &product)
	return &product, nil
}

// Remove clears and deletes the product's image
func (s *ImageService) Remove(ctx context.Context, productID uint) error {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError(ErrCodeProductNotFound, "Product not found")
		}
		return fmt.Errorf("failed to load product: %w", err)
	}
	if product.ImageKey == nil {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&product).Update("image_key", nil).Error; err != nil {
		return fmt.Errorf("failed to clear image key: %w", err)
	}
	s.deleteQuietly(ctx, *product.ImageKey)
	return nil
}

// Resolve fills product.ImageURL. A URL that cannot be produced is logged and
// left empty so catalog pages still render.
func (s *ImageService) Resolve(ctx context.Context, product *models.Product) {
	if s == nil || s.store == nil || product.ImageKey == nil || *product.ImageKey == "" {
		return
	}
	url, err := s.store.URL(ctx, *product.ImageKey)
	if err != nil {
		logger.Warn("Failed to resolve product image", zap.Uint("product_id", product.ID), zap.Error(err))
		return
	}
	product.ImageURL = url
}

// ResolveAll fills ImageURL on every product
func (s *ImageService) ResolveAll(ctx context.Context, products []models.Product) {
	for i := range products {
		s.Resolve(ctx, &products[i])
	}
}

func (s *ImageService) deleteQuietly(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Warn("Failed to delete product image", zap.String("key", key), zap.Error(err))
	}
}
