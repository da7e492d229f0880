package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/middleware"
)

// RequestOTPRequest represents the request body for requesting a login code
type RequestOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyOTPRequest represents the request body for verifying a login code
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// AdminLoginRequest represents the request body for an admin login
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RequestOTP handles POST /api/v1/auth/otp/request - emails a login code
func RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	if err := authService().RequestOTP(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"message": "A login code has been sent to your email"})
}

// VerifyOTP handles POST /api/v1/auth/otp/verify - exchanges a code for a session
func VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	session, user, err := authService().VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, session.Token, maxAge, "/", "", config.GetConfig().IsProduction(), true)

	respondOK(c, http.StatusOK, gin.H{
		"user":       user,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Logout handles POST /api/v1/auth/logout - ends the current session
func Logout(c *gin.Context) {
	if err := authService().Logout(c.Request.Context(), middleware.SessionToken(c)); err != nil {
		respondError(c, err)
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", config.GetConfig().IsProduction(), true)
	respondOK(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// GetMe handles GET /api/v1/auth/me - returns the logged in customer
func GetMe(c *gin.Context) {
	user, err := middleware.GetUser(c)
	if err != nil {
		respondErrorWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// AdminLogin handles POST /api/v1/auth/admin/login - issues an admin access token
func AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	token, expiresAt, err := authService().AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}
