package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/kendall-kelly/storefront-api/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testKeySecret     = "test-key-secret"
	testWebhookSecret = "test-webhook-secret"
)

// testEnv holds the mocks wired into the package singletons for one test
type testEnv struct {
	db      *gorm.DB
	gateway *services.MockPaymentGateway
	carrier *services.MockCarrierClient
	mailer  *services.MockMailer
	store   *services.MockObjectStore
	otp     *services.MemoryOTPStore
}

func setupControllerTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.RegisterValidators()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	config.SetDB(db)
	config.SetConfig(&config.Config{
		GoEnv:                 "test",
		AdminJWTSecret:        "controller-test-secret-0123456789abcdef",
		AdminJWTIssuer:        "storefront-api-test",
		AdminTokenTTL:         time.Hour,
		SessionTTL:            24 * time.Hour,
		OTPTTL:                5 * time.Minute,
		OTPMaxAttempts:        5,
		PaymentKeyID:          "rzp_test_key",
		PaymentKeySecret:      testKeySecret,
		PaymentWebhookSecret:  testWebhookSecret,
		CarrierPickupLocation: "Warehouse",
		CarrierTimeout:        5 * time.Second,
		TrackingConcurrency:   2,
		ShippingFlatFee:       4900,
		FreeShippingThreshold: 99900,
		TaxRateBps:            0,
	})

	env := &testEnv{
		db:      db,
		gateway: services.NewMockPaymentGateway(),
		carrier: services.NewMockCarrierClient(),
		mailer:  services.NewMockMailer(),
		store:   services.NewMockObjectStore(),
		otp:     services.NewMemoryOTPStore(5),
	}
	env.gateway.SetAsMockForTesting()
	env.carrier.SetAsMockForTesting()
	env.mailer.SetAsMockForTesting()
	env.store.SetAsMockForTesting()
	services.SetOTPStore(env.otp)

	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
	return env
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// mockAuthMiddleware stands in for the session middleware
func mockAuthMiddleware(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	response := decodeResponse(t, w)
	errorData, ok := response["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return errorData["code"].(string)
}

func (e *testEnv) createCustomer(t *testing.T, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "Asha Rao", Email: email, Phone: "9876543210", Role: models.RoleCustomer}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

// createSocks creates an active product with a shared-pool pack-of-1 and
// pack-of-2 variant and returns them in that order.
func (e *testEnv) createSocks(t *testing.T, baseStock int) (*models.Product, []models.Variant) {
	t.Helper()
	product := &models.Product{Name: "Crew Socks", Slug: "crew-socks", Category: "socks", IsActive: true}
	require.NoError(t, e.db.Create(product).Error)

	var variants []models.Variant
	for _, pack := range []int{1, 2} {
		base := baseStock
		v := models.Variant{
			ProductID:      product.ID,
			Size:           "M",
			Color:          "Black",
			Pack:           pack,
			SKU:            fmt.Sprintf("SOCK-P%d-M", pack),
			Price:          int64(29900 * pack),
			BaseStock:      &base,
			UseSharedStock: true,
			IsActive:       true,
		}
		require.NoError(t, e.db.Create(&v).Error)
		variants = append(variants, v)
	}
	return product, variants
}

func (e *testEnv) addToCart(t *testing.T, userID, variantID uint, quantity int) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.CartItem{UserID: userID, VariantID: variantID, Quantity: quantity}).Error)
}

func (e *testEnv) baseStock(t *testing.T, variantID uint) int {
	t.Helper()
	var v models.Variant
	require.NoError(t, e.db.First(&v, variantID).Error)
	require.NotNil(t, v.BaseStock)
	return *v.BaseStock
}

var testAddress = map[string]interface{}{
	"name":    "Asha Rao",
	"phone":   "9876543210",
	"line1":   "12 MG Road",
	"city":    "Bengaluru",
	"state":   "Karnataka",
	"pincode": "560001",
}

func assertStatus(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, w.Body.String())
}
