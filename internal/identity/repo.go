package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
)

// Repository persists OTP challenges. There is at most one row per (email, purchase).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, challenge *models.OtpChallenge) error
	FindForUpdate(ctx context.Context, email string, purchaseID uuid.UUID) (*models.OtpChallenge, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a challenge repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Upsert replaces any prior challenge for the key, which resets attempts and clears
// consumption.
func (r *repositoryImpl) Upsert(ctx context.Context, challenge *models.OtpChallenge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}, {Name: "purchase_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"id", "code_hash", "expires_at", "consumed_at", "attempt_count", "created_at",
			}),
		}).
		Create(challenge).Error
}

func (r *repositoryImpl) FindForUpdate(ctx context.Context, email string, purchaseID uuid.UUID) (*models.OtpChallenge, error) {
	var challenge models.OtpChallenge
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("email = ? AND purchase_id = ?", email, purchaseID).First(&challenge).Error; err != nil {
		return nil, err
	}
	return &challenge, nil
}

// IncrementAttempts bumps the counter atomically and returns the new value.
func (r *repositoryImpl) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.OtpChallenge{}).
		Where("id = ?", id).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error; err != nil {
		return 0, err
	}
	var count int
	if err := db.Model(&models.OtpChallenge{}).
		Select("attempt_count").
		Where("id = ?", id).
		Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Consume marks the challenge used. Zero rows means it was already consumed.
func (r *repositoryImpl) Consume(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OtpChallenge{}).
		Where("id = ? AND consumed_at IS NULL", id).
		UpdateColumn("consumed_at", at)
	return res.RowsAffected, res.Error
}

// DeleteBefore removes challenges that expired before cutoff.
func (r *repositoryImpl) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.OtpChallenge{})
	return res.RowsAffected, res.Error
}
