package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/kendall-kelly/storefront-api/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Secrets used by TestConfig
const (
	PaymentKeySecret     = "integration-key-secret"
	PaymentWebhookSecret = "integration-webhook-secret"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test for the duration of t
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "test")
	RequireTestEnvironment(t)
}

// TestConfig returns a configuration suitable for in-process tests and
// installs it as the global configuration.
func TestConfig() *config.Config {
	cfg := &config.Config{
		GoEnv:                 "test",
		LogLevel:              "error",
		AdminJWTSecret:        "integration-admin-secret-0123456789abcdef",
		AdminJWTIssuer:        "storefront-api-test",
		AdminTokenTTL:         time.Hour,
		SessionTTL:            24 * time.Hour,
		OTPTTL:                5 * time.Minute,
		OTPMaxAttempts:        5,
		PaymentKeyID:          "rzp_test_integration",
		PaymentKeySecret:      PaymentKeySecret,
		PaymentWebhookSecret:  PaymentWebhookSecret,
		CarrierPickupLocation: "Warehouse",
		CarrierTimeout:        5 * time.Second,
		TrackingConcurrency:   4,
		ShippingFlatFee:       4900,
		FreeShippingThreshold: 99900,
	}
	config.SetConfig(cfg)
	return cfg
}

// NewTestDB opens an in-memory SQLite database with every model migrated and
// installs it as the global database. It is closed when t finishes.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
	return db
}

// Mocks groups the fakes installed by InstallMocks
type Mocks struct {
	Gateway *services.MockPaymentGateway
	Carrier *services.MockCarrierClient
	Mailer  *services.MockMailer
	Store   *services.MockObjectStore
	OTP     *services.MemoryOTPStore
}

// InstallMocks replaces every external dependency with an in-memory fake
func InstallMocks() *Mocks {
	utils.RegisterValidators()

	m := &Mocks{
		Gateway: services.NewMockPaymentGateway(),
		Carrier: services.NewMockCarrierClient(),
		Mailer:  services.NewMockMailer(),
		Store:   services.NewMockObjectStore(),
		OTP:     services.NewMemoryOTPStore(5),
	}
	m.Gateway.SetAsMockForTesting()
	m.Carrier.SetAsMockForTesting()
	m.Mailer.SetAsMockForTesting()
	m.Store.SetAsMockForTesting()
	services.SetOTPStore(m.OTP)
	return m
}

// SharedStockProduct creates an active product whose pack-of-1 and pack-of-2
// variants draw from one Black/M pool of baseStock units.
func SharedStockProduct(t *testing.T, db *gorm.DB, slug string, baseStock int) (*models.Product, []models.Variant) {
	t.Helper()

	product := &models.Product{Name: "Crew Socks", Slug: slug, Category: "socks", IsActive: true}
	require.NoError(t, db.Create(product).Error)

	variants := make([]models.Variant, 0, 2)
	for pack := 1; pack <= 2; pack++ {
		base := baseStock
		v := models.Variant{
			ProductID:      product.ID,
			Size:           "M",
			Color:          "Black",
			Pack:           pack,
			SKU:            fmt.Sprintf("SOCK-P%d-M", pack),
			Price:          29900 * int64(pack),
			BaseStock:      &base,
			UseSharedStock: true,
			IsActive:       true,
		}
		require.NoError(t, db.Create(&v).Error)
		variants = append(variants, v)
	}
	return product, variants
}
