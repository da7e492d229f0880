package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/services"
)

// ListAddresses handles GET /api/v1/addresses
func ListAddresses(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	addresses, err := services.NewAddressService(config.GetDB()).List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, addresses)
}

// CreateAddress handles POST /api/v1/addresses
func CreateAddress(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	var req services.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	address, err := services.NewAddressService(config.GetDB()).Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, address)
}

// DeleteAddress handles DELETE /api/v1/addresses/:id
func DeleteAddress(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	addressID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := services.NewAddressService(config.GetDB()).Delete(c.Request.Context(), userID, addressID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "Address deleted"})
}
