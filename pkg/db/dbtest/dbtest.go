// Package dbtest opens isolated sqlite databases carrying the full schema for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// Open returns a client over a fresh in-memory database private to the test.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	client := db.FromGorm(conn)
	if err := client.EnsureSQLiteSchema(context.Background()); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// SingleConnection pins the pool to one connection so goroutines racing on the
// same rows queue for it instead of tripping sqlite's shared-cache table locks.
// Each transaction still runs whole, so conditional updates see the committed
// state of the one before.
func SingleConnection(t testing.TB, client *db.Client) {
	t.Helper()
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

// SeedCatalogItem inserts an active catalog item with the given price.
func SeedCatalogItem(t testing.TB, client *db.Client, kind enums.ProductKind, title string, price string, accessDays *int) models.CatalogItem {
	t.Helper()
	item := models.CatalogItem{
		ID:          uuid.New(),
		Kind:        kind,
		Title:       title,
		PriceAmount: decimal.RequireFromString(price),
		Currency:    enums.CurrencyINR,
		AccessDays:  accessDays,
		IsActive:    true,
	}
	if err := client.DB().Create(&item).Error; err != nil {
		t.Fatalf("seed catalog item: %v", err)
	}
	return item
}

// SeedAsset attaches a protected asset to a catalog item.
func SeedAsset(t testing.TB, client *db.Client, itemID uuid.UUID, kind enums.AssetKind, storageKey string) models.CatalogAsset {
	t.Helper()
	asset := models.CatalogAsset{
		ID:            uuid.New(),
		CatalogItemID: itemID,
		Kind:          kind,
		Title:         "Lesson",
		StorageKey:    storageKey,
		ContentType:   "video/mp4",
	}
	if kind == enums.AssetKindDocument {
		asset.ContentType = "application/pdf"
	}
	if err := client.DB().Create(&asset).Error; err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return asset
}

// SeedUser inserts an active account.
func SeedUser(t testing.TB, client *db.Client, email string, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "unused",
		FullName:     "Test User",
		Role:         role,
		IsActive:     true,
	}
	if err := client.DB().Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// FixedClock returns a clock function pinned to the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
