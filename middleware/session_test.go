package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Session{}))

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		_ = sqlDB.Close()
	})
	return db
}

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupSessionDB(t)

	user := models.User{Name: "Asha", Email: "asha@example.com", Role: models.RoleCustomer}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.Session{Token: "live", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}).Error)
	require.NoError(t, db.Create(&models.Session{Token: "stale", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Minute)}).Error)

	tests := []struct {
		name       string
		setup      func(*http.Request)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "cookie session",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "live"}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "header session",
			setup:      func(r *http.Request) { r.Header.Set(SessionHeader, "live") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "no token",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "AUTH_REQUIRED",
		},
		{
			name:       "expired session",
			setup:      func(r *http.Request) { r.Header.Set(SessionHeader, "stale") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "SESSION_EXPIRED",
		},
		{
			name:       "unknown token",
			setup:      func(r *http.Request) { r.Header.Set(SessionHeader, "nope") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "SESSION_EXPIRED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			var gotUserID uint
			var gotEmail string
			router.GET("/me", RequireSession(), func(c *gin.Context) {
				gotUserID, _ = GetUserID(c)
				if u, err := GetUser(c); err == nil {
					gotEmail = u.Email
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, user.ID, gotUserID)
				assert.Equal(t, "asha@example.com", gotEmail)
			} else {
				assert.Contains(t, w.Body.String(), tt.wantCode)
				assert.Zero(t, gotUserID)
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := GetUser(c)
	assert.Error(t, err)

	c.Set("user", "not a user")
	_, err = GetUser(c)
	assert.Error(t, err)

	c.Set("user", &models.User{ID: 5})
	u, err := GetUser(c)
	require.NoError(t, err)
	assert.Equal(t, uint(5), u.ID)
}
