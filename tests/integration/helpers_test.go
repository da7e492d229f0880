package integration

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var otpPattern = regexp.MustCompile(`\b[0-9]{6}\b`)

// newSession stores a live session for a fresh customer and returns its token
func newSession(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()

	user := &models.User{Name: "Test Customer", Email: email, Phone: "9876543210", Role: models.RoleCustomer}
	require.NoError(t, db.Create(user).Error)

	session := &models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(session).Error)
	return user, session.Token
}
