package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Where customers present their session token
const (
	SessionCookie = "session_token"
	SessionHeader = "X-Session-Token"
)

// SessionToken returns the session token sent with the request, preferring
// the cookie over the header.
func SessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader(SessionHeader))
}

// RequireSession rejects requests without a live customer session and puts
// the session's user into the context.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			abortUnauthorized(c, "AUTH_REQUIRED", "Please log in to continue")
			return
		}

		var session models.Session
		err := config.GetDB().WithContext(c.Request.Context()).
			Preload("User").
			Where("token = ? AND expires_at > ?", token, time.Now()).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && session.User == nil) {
			abortUnauthorized(c, "SESSION_EXPIRED", "Your session has expired, please log in again")
			return
		}
		if err != nil {
			logger.Error("Failed to load session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "Failed to load session",
				},
			})
			return
		}

		c.Set("user_id", session.UserID)
		c.Set("user", session.User)
		c.Set("session_token", token)
		c.Next()
	}
}

// GetUser returns the user put into the context by RequireSession
func GetUser(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}

	u, ok := user.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}
	return u, nil
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
