package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// CatalogItem is a purchasable course, consultation slot or e-report.
type CatalogItem struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Kind        enums.ProductKind `gorm:"column:kind;not null"`
	Title       string            `gorm:"column:title;not null"`
	PriceAmount decimal.Decimal   `gorm:"column:price_amount;type:numeric(12,2);not null"`
	Currency    enums.Currency    `gorm:"column:currency;not null;default:INR"`
	// AccessDays bounds how long an approved course stays viewable; nil means forever.
	AccessDays *int      `gorm:"column:access_days"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CatalogAsset is a protected object released to buyers of its catalog item.
type CatalogAsset struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CatalogItemID uuid.UUID       `gorm:"column:catalog_item_id;type:uuid;not null"`
	Kind          enums.AssetKind `gorm:"column:kind;not null"`
	Title         string          `gorm:"column:title;not null"`
	StorageKey    string          `gorm:"column:storage_key;not null"`
	ContentType   string          `gorm:"column:content_type;not null"`
	Position      int             `gorm:"column:position;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
