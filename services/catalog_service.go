package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Catalog error codes
const (
	ErrCodeProductNotFound  = "PRODUCT_NOT_FOUND"
	ErrCodeProductExists    = "PRODUCT_EXISTS"
	ErrCodeInvalidBaseStock = "INVALID_BASE_STOCK"
)

// VariantInput describes a variant to create
type VariantInput struct {
	Size           string `json:"size" binding:"required"`
	Color          string `json:"color" binding:"required"`
	Pack           int    `json:"pack" binding:"omitempty,min=1,max=12"`
	SKU            string `json:"sku"`
	Price          int64  `json:"price" binding:"required,gt=0"`
	Stock          int    `json:"stock" binding:"gte=0"`
	BaseStock      *int   `json:"base_stock" binding:"omitempty,gte=0"`
	UseSharedStock bool   `json:"use_shared_stock"`
}

// CreateProductInput describes a product with its variants
type CreateProductInput struct {
	Name        string         `json:"name" binding:"required,max=200"`
	Slug        string         `json:"slug" binding:"omitempty,max=200"`
	Description string         `json:"description"`
	Category    string         `json:"category" binding:"required"`
	Features    []string       `json:"features"`
	Variants    []VariantInput `json:"variants" binding:"required,min=1,dive"`
}

// NormalizeColor title-cases a colour name and collapses its spaces, so
// "navy  BLUE" and "Navy Blue" name the same stock pool.
func NormalizeColor(color string) string {
	words := strings.Fields(strings.ToLower(color))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// NormalizeSize upper-cases a size label and collapses its spaces
func NormalizeSize(size string) string {
	return strings.ToUpper(strings.Join(strings.Fields(size), " "))
}

// ProductFilter narrows a catalog listing
type ProductFilter struct {
	Category        string
	Page            int
	PageSize        int
	IncludeInactive bool
}

// CatalogService reads and maintains products and variants
type CatalogService struct {
	db     *gorm.DB
	images *ImageService
}

// NewCatalogService creates a catalog service. images may be nil, in which
// case image URLs are not resolved.
func NewCatalogService(db *gorm.DB, images *ImageService) *CatalogService {
	return &CatalogService{db: db, images: images}
}

// Slugify lower-cases name and joins its words with hyphens
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *CatalogService) preload(db *gorm.DB, activeOnly bool) *gorm.DB {
	variants := func(tx *gorm.DB) *gorm.DB {
		if activeOnly {
			tx = tx.Where("is_active = ?", true)
		}
		return tx.Order("color, size, pack")
	}
	features := func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }
	return db.Preload("Variants", variants).Preload("Features", features)
}

func (s *CatalogService) finish(ctx context.Context, products []models.Product) {
	for i := range products {
		ApplyCalculatedStock(products[i].Variants)
	}
	s.images.ResolveAll(ctx, products)
}

// ListProducts returns a page of products and the total count. Public
// listings only include active products and active variants.
func (s *CatalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	page, size := NormalizePage(filter.Page, filter.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Product{})
	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", strings.ToLower(filter.Category))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	err := s.preload(query, !filter.IncludeInactive).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&products).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	s.finish(ctx, products)
	return products, total, nil
}

// GetProductBySlug returns an active product with its active variants
func (s *CatalogService) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := s.preload(s.db.WithContext(ctx), true).
		Where("slug = ? AND is_active = ?", strings.ToLower(slug), true).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeProductNotFound, "Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	products := []models.Product{product}
	s.finish(ctx, products)
	return &products[0], nil
}

// GetProduct returns a product with every variant, for administration
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := s.preload(s.db.WithContext(ctx), false).First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeProductNotFound, "Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	products := []models.Product{product}
	s.finish(ctx, products)
	return &products[0], nil
}

// CreateProduct creates a product with its features and variants. Shared
// variants of one (color, size) must agree on their base stock.
func (s *CatalogService) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(input.Name)
	}
	if slug == "" {
		return nil, utils.NewValidationError("INVALID_SLUG", "A product name or slug is required")
	}

	product := models.Product{
		Name:        strings.TrimSpace(input.Name),
		Slug:        slug,
		Description: input.Description,
		Category:    strings.ToLower(strings.TrimSpace(input.Category)),
		IsActive:    true,
	}
	for i, text := range input.Features {
		if text = strings.TrimSpace(text); text != "" {
			product.Features = append(product.Features, models.Feature{Text: text, Position: i})
		}
	}

	pools := make(map[string]int)
	for _, in := range input.Variants {
		v := models.Variant{
			Size:           NormalizeSize(in.Size),
			Color:          NormalizeColor(in.Color),
			Pack:           in.Pack,
			SKU:            strings.ToUpper(strings.TrimSpace(in.SKU)),
			Price:          in.Price,
			Stock:          in.Stock,
			UseSharedStock: in.UseSharedStock,
			IsActive:       true,
		}
		if v.Pack < 1 {
			v.Pack = 1
		}
		if in.UseSharedStock {
			if in.BaseStock == nil {
				return nil, utils.NewValidationError(ErrCodeInvalidBaseStock, "Shared-stock variants need a base stock")
			}
			pool := v.Color + "|" + v.Size
			if existing, ok := pools[pool]; ok && existing != *in.BaseStock {
				return nil, utils.NewValidationError(ErrCodeInvalidBaseStock,
					fmt.Sprintf("Variants of %s/%s share one pool and need the same base stock", v.Color, v.Size))
			}
			pools[pool] = *in.BaseStock
			base := *in.BaseStock
			v.BaseStock = &base
		}
		product.Variants = append(product.Variants, v)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Product{}).Unscoped().Where("slug = ?", slug).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check slug: %w", err)
		}
		if count > 0 {
			return utils.NewConflictError(ErrCodeProductExists, fmt.Sprintf("A product with slug %q already exists", slug))
		}
		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Product created", zap.Uint("product_id", product.ID), zap.String("slug", slug),
		zap.Int("variants", len(product.Variants)))
	return s.GetProduct(ctx, product.ID)
}

// SetProductActive shows or hides a product in the storefront
func (s *CatalogService) SetProductActive(ctx context.Context, id uint, active bool) (*models.Product, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewNotFoundError(ErrCodeProductNotFound, "Product not found")
	}
	return s.GetProduct(ctx, id)
}

// UpdateVariantPrice changes the price of a variant. Existing orders keep
// the price they were placed at.
func (s *CatalogService) UpdateVariantPrice(ctx context.Context, variantID uint, price int64) error {
	if price <= 0 {
		return utils.NewValidationError("INVALID_PRICE", "Price must be greater than zero")
	}
	res := s.db.WithContext(ctx).Model(&models.Variant{}).Where("id = ?", variantID).Update("price", price)
	if res.Error != nil {
		return fmt.Errorf("failed to update price: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NewNotFoundError(ErrCodeVariantNotFound, "Variant not found")
	}
	return nil
}

// RemoveVariant deletes a variant that no order refers to and deactivates
// one that is referenced. It reports whether the row was deleted.
func (s *CatalogService) RemoveVariant(ctx context.Context, variantID uint) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variant models.Variant
		if err := tx.First(&variant, variantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError(ErrCodeVariantNotFound, "Variant not found")
			}
			return fmt.Errorf("failed to load variant: %w", err)
		}

		if err := tx.Where("variant_id = ?", variantID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to remove variant from carts: %w", err)
		}

		var references int64
		if err := tx.Model(&models.OrderItem{}).Where("variant_id = ?", variantID).Count(&references).Error; err != nil {
			return fmt.Errorf("failed to check order references: %w", err)
		}
		if references > 0 {
			return tx.Model(&variant).Update("is_active", false).Error
		}

		deleted = true
		return tx.Delete(&variant).Error
	})
	if err != nil {
		return false, err
	}

	logger.Info("Variant removed", zap.Uint("variant_id", variantID), zap.Bool("deleted", deleted))
	return deleted, nil
}

// NormalizePage clamps page to >= 1 and size to 1..100 (default 20)
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
