package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/services"
)

// SetProductActiveRequest toggles a product's visibility
type SetProductActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// UpdateVariantPriceRequest sets a variant's price in paise
type UpdateVariantPriceRequest struct {
	Price int64 `json:"price" binding:"required,gt=0"`
}

// UpdateBaseStockRequest overwrites a shared stock pool
type UpdateBaseStockRequest struct {
	Color     string `json:"color" binding:"required"`
	Size      string `json:"size" binding:"required"`
	BaseStock *int   `json:"base_stock" binding:"required,gte=0"`
}

func listProducts(c *gin.Context, includeInactive bool) {
	filter := services.ProductFilter{
		Category:        c.Query("category"),
		Page:            queryInt(c, "page"),
		PageSize:        queryInt(c, "page_size"),
		IncludeInactive: includeInactive,
	}

	products, total, err := catalogService().ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	page, size := services.NormalizePage(filter.Page, filter.PageSize)
	respondOK(c, http.StatusOK, paginated(products, total, page, size))
}

// ListProducts handles GET /api/v1/products - lists active products
func ListProducts(c *gin.Context) {
	listProducts(c, false)
}

// GetProduct handles GET /api/v1/products/:slug - one product with its variants and stock
func GetProduct(c *gin.Context) {
	product, err := catalogService().GetProductBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// AdminListProducts handles GET /api/v1/admin/products - lists every product
func AdminListProducts(c *gin.Context) {
	listProducts(c, true)
}

// AdminGetProduct handles GET /api/v1/admin/products/:id
func AdminGetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	product, err := catalogService().GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// CreateProduct handles POST /api/v1/admin/products
func CreateProduct(c *gin.Context) {
	var req services.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	product, err := catalogService().CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, product)
}

// SetProductActive handles PATCH /api/v1/admin/products/:id
func SetProductActive(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req SetProductActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	product, err := catalogService().SetProductActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// UploadProductImage handles POST /api/v1/admin/products/:id/image - multipart field "image"
func UploadProductImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondErrorWith(c, http.StatusBadRequest, "MISSING_FILE", "An image file is required in the \"image\" field", nil)
		return
	}

	product, err := imageService().Upload(c.Request.Context(), id, fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// DeleteProductImage handles DELETE /api/v1/admin/products/:id/image
func DeleteProductImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := imageService().Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "Image removed"})
}

// UpdateVariantPrice handles PATCH /api/v1/admin/variants/:id/price
func UpdateVariantPrice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateVariantPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	if err := catalogService().UpdateVariantPrice(c.Request.Context(), id, req.Price); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "price": req.Price})
}

// RemoveVariant handles DELETE /api/v1/admin/variants/:id. Variants that
// appear on orders are deactivated instead of deleted.
func RemoveVariant(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	deleted, err := catalogService().RemoveVariant(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	action := "deactivated"
	if deleted {
		action = "deleted"
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "action": action})
}

// UpdateBaseStock handles PUT /api/v1/admin/products/:id/stock - overwrites a shared pool
func UpdateBaseStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateBaseStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	updated, err := services.NewStockService(config.GetDB()).
		UpdateBaseStock(c.Request.Context(), id, req.Color, req.Size, *req.BaseStock)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"product_id":       id,
		"color":            req.Color,
		"size":             req.Size,
		"base_stock":       *req.BaseStock,
		"variants_updated": updated,
	})
}
