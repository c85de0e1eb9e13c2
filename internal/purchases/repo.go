package purchases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository binds a purchases repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).First(&purchase, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&purchase, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) Decide(ctx context.Context, id uuid.UUID, params DecisionParams) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPendingModeration).
		Updates(map[string]any{
			"status":            params.Status,
			"decided_at":        params.DecidedAt,
			"decided_by":        params.DecidedBy,
			"decision_note":     params.Note,
			"access_expires_at": params.AccessExpiresAt,
			"updated_at":        params.DecidedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Admit(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND proof_ref IS NOT NULL", id, enums.PurchaseStatusPendingIdentity).
		Updates(map[string]any{
			"status":          enums.PurchaseStatusPendingModeration,
			"buyer_user_id":   userID,
			"pending_account": gorm.Expr("NULL"),
			"updated_at":      at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ReplaceProof(ctx context.Context, id uuid.UUID, proofRef string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status IN ?", id, []enums.PurchaseStatus{
			enums.PurchaseStatusPendingIdentity,
			enums.PurchaseStatusPendingModeration,
		}).
		Updates(map[string]any{
			"proof_ref":  proofRef,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Purchase, error) {
	q := r.db.WithContext(ctx).Model(&models.Purchase{})
	if filter.Kind != nil {
		q = q.Where("product_kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	var rows []models.Purchase
	if err := pagination.Ascending(q, cursor).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListForBuyer(ctx context.Context, userID uuid.UUID, email string, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("buyer_user_id = ? OR lower(buyer_email) = ?", userID, strings.ToLower(strings.TrimSpace(email))).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PurchaseStatusPendingModeration, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM outbox_events oe WHERE oe.aggregate_id = purchases.id AND oe.event_type = ?)",
			enums.EventPurchaseModerationOverdue).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByKindAndStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Select("product_kind, status, count(*) AS count").
		Group("product_kind, status").
		Order("product_kind ASC").
		Order("status ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
