package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/middleware"
	"github.com/kendall-kelly/storefront-api/services"
)

// UpdateCartItemRequest sets the quantity of a cart line. Zero removes it.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,gte=0,max=20"`
}

// sessionUserID returns the logged in customer's ID or writes a 401
func sessionUserID(c *gin.Context) (uint, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		respondErrorWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return 0, false
	}
	return userID, true
}

// GetCart handles GET /api/v1/cart
func GetCart(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	cart, err := services.NewCartService(config.GetDB()).GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

// AddCartItem handles POST /api/v1/cart/items
func AddCartItem(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	var req services.AddCartItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	cart, err := services.NewCartService(config.GetDB()).AddItem(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

// UpdateCartItem handles PATCH /api/v1/cart/items/:id
func UpdateCartItem(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	cart, err := services.NewCartService(config.GetDB()).UpdateQuantity(c.Request.Context(), userID, itemID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

// RemoveCartItem handles DELETE /api/v1/cart/items/:id
func RemoveCartItem(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "id")
	if !ok {
		return
	}

	cart, err := services.NewCartService(config.GetDB()).RemoveItem(c.Request.Context(), userID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}
