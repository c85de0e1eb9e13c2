package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// Repository reads catalog items and their protected assets.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the catalog repository to a GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindItem loads a catalog item regardless of its active flag.
func (r *Repository) FindItem(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ListActive returns purchasable items, optionally restricted to one kind.
func (r *Repository) ListActive(ctx context.Context, kind *enums.ProductKind) ([]models.CatalogItem, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if kind != nil {
		q = q.Where("kind = ?", *kind)
	}
	var items []models.CatalogItem
	if err := q.Order("kind ASC").Order("title ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// TitlesByID maps item ids to titles for list views.
func (r *Repository) TitlesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.CatalogItem
	if err := r.db.WithContext(ctx).Select("id", "title").Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item.Title
	}
	return out, nil
}

// FindAsset loads one protected asset.
func (r *Repository) FindAsset(ctx context.Context, id uuid.UUID) (*models.CatalogAsset, error) {
	var asset models.CatalogAsset
	if err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListAssets returns the assets of an item in display order.
func (r *Repository) ListAssets(ctx context.Context, itemID uuid.UUID) ([]models.CatalogAsset, error) {
	var assets []models.CatalogAsset
	err := r.db.WithContext(ctx).
		Where("catalog_item_id = ?", itemID).
		Order("position ASC").
		Order("id ASC").
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}
