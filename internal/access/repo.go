package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// Repository answers entitlement questions straight from the purchase ledger.
type Repository interface {
	HasApprovedPurchase(ctx context.Context, who Identity, assetID uuid.UUID, at time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository binds the entitlement queries to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// HasApprovedPurchase runs a single query: an approved, unexpired purchase of the item
// owning the asset, bought by this account or this email.
func (r *repositoryImpl) HasApprovedPurchase(ctx context.Context, who Identity, assetID uuid.UUID, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("purchases AS p").
		Joins("JOIN catalog_assets AS a ON a.catalog_item_id = p.product_ref").
		Where("a.id = ?", assetID).
		Where("p.status = ?", enums.PurchaseStatusApproved).
		Where("(p.buyer_user_id = ? OR lower(p.buyer_email) = ?)", who.UserID, who.Email).
		Where("(p.access_expires_at IS NULL OR p.access_expires_at > ?)", at).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
