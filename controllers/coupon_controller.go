package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/services"
)

// ValidateCouponRequest represents the request body for checking a coupon
type ValidateCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// ValidateCoupon handles POST /api/v1/coupons/validate - prices a coupon against the current cart
func ValidateCoupon(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	db := config.GetDB()
	cart, err := services.NewCartService(db).GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := services.NewCouponService(db).Validate(c.Request.Context(), req.Code, userID, cart.Subtotal)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// CreateCoupon handles POST /api/v1/admin/coupons
func CreateCoupon(c *gin.Context) {
	var req services.CreateCouponInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	coupon, err := services.NewCouponService(config.GetDB()).Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, coupon)
}

// ListCoupons handles GET /api/v1/admin/coupons
func ListCoupons(c *gin.Context) {
	coupons, err := services.NewCouponService(config.GetDB()).List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, coupons)
}

// DeactivateCoupon handles DELETE /api/v1/admin/coupons/:id
func DeactivateCoupon(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	coupon, err := services.NewCouponService(config.GetDB()).Deactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, coupon)
}
