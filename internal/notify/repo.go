package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// Repository persists the notification delivery log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, delivery *models.NotificationDelivery) (bool, error)
	Exists(ctx context.Context, eventID uuid.UUID, channel enums.NotificationChannel, audience enums.NotificationAudience) (bool, error)
	ListForPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.NotificationDelivery, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a delivery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Record inserts a delivery. It returns false when the event was already recorded
// for the same channel and audience.
func (r *repositoryImpl) Record(ctx context.Context, delivery *models.NotificationDelivery) (bool, error) {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_notification_deliveries_event_channel") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) Exists(ctx context.Context, eventID uuid.UUID, channel enums.NotificationChannel, audience enums.NotificationAudience) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotificationDelivery{}).
		Where("event_id = ? AND channel = ? AND audience = ?", eventID, channel, audience).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) ListForPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.NotificationDelivery{})
	return res.RowsAffected, res.Error
}
