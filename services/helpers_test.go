package services

import (
	"fmt"
	"testing"

	"github.com/kendall-kelly/storefront-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a migrated in-memory database. A single connection keeps
// every goroutine on the same in-memory schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "Test Shopper", Email: email, Phone: "9876543210", Role: models.RoleCustomer}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createProduct(t *testing.T, db *gorm.DB, slug string) *models.Product {
	t.Helper()
	product := &models.Product{Name: "Crew Socks", Slug: slug, Category: "socks", IsActive: true}
	require.NoError(t, db.Create(product).Error)
	return product
}

// createSharedVariants creates pack-of-1, 2 and 3 variants sharing one pool.
func createSharedVariants(t *testing.T, db *gorm.DB, product *models.Product, color, size string, baseStock int) []models.Variant {
	t.Helper()
	var variants []models.Variant
	for _, pack := range []int{1, 2, 3} {
		v := models.Variant{
			ProductID:      product.ID,
			Size:           size,
			Color:          color,
			Pack:           pack,
			SKU:            fmt.Sprintf("SOCK-P%d-%s", pack, size),
			Price:          int64(29900 * pack),
			BaseStock:      intPtr(baseStock),
			UseSharedStock: true,
			IsActive:       true,
		}
		require.NoError(t, db.Create(&v).Error)
		variants = append(variants, v)
	}
	return variants
}

func createVariant(t *testing.T, db *gorm.DB, product *models.Product, price int64, stock int) *models.Variant {
	t.Helper()
	v := &models.Variant{
		ProductID: product.ID,
		Size:      "M",
		Color:     "Black",
		Pack:      1,
		SKU:       "TEE-BLK-M",
		Price:     price,
		Stock:     stock,
		IsActive:  true,
	}
	require.NoError(t, db.Create(v).Error)
	return v
}

func reloadVariant(t *testing.T, db *gorm.DB, id uint) models.Variant {
	t.Helper()
	var v models.Variant
	require.NoError(t, db.First(&v, id).Error)
	return v
}
