package testutil

import (
	"strconv"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/middleware"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/stretchr/testify/require"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer, role string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			Audience: []string{config.AdminTokenAudience},
		},
		CustomClaims: &middleware.CustomClaims{
			Role: role,
		},
	}
}

// SetMockAuthContext sets up the context the admin token middleware would produce
func SetMockAuthContext(c *gin.Context, userID uint, issuer, role string) {
	claims := MockValidatedClaims(strconv.FormatUint(uint64(userID), 10), issuer, role)
	c.Set("user_id", userID)
	c.Set("validated_claims", claims)
}

// MockSessionMiddleware stands in for RequireSession with a fixed customer
func MockSessionMiddleware(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

// AdminToken signs a real admin access token for user with cfg's secret
func AdminToken(t *testing.T, cfg *config.Config, user *models.User) string {
	t.Helper()
	token, _, err := services.IssueAdminToken(services.AuthSettingsFromConfig(cfg), user, time.Now())
	require.NoError(t, err)
	return token
}

// CreateTestContext creates a test Gin context
func CreateTestContext() (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, engine := gin.CreateTestContext(nil)
	return c, engine
}
