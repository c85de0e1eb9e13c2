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

// ResetRepository persists password reset codes, one row per account email.
type ResetRepository interface {
	WithTx(tx *gorm.DB) ResetRepository
	Upsert(ctx context.Context, challenge *models.PasswordResetChallenge) error
	FindForUpdate(ctx context.Context, email string) (*models.PasswordResetChallenge, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type resetRepository struct {
	db *gorm.DB
}

// NewResetRepository returns a reset code repository bound to db.
func NewResetRepository(db *gorm.DB) ResetRepository {
	return &resetRepository{db: db}
}

func (r *resetRepository) WithTx(tx *gorm.DB) ResetRepository {
	if tx == nil {
		return r
	}
	return &resetRepository{db: tx}
}

// Upsert replaces the account's previous code along with its attempts.
func (r *resetRepository) Upsert(ctx context.Context, challenge *models.PasswordResetChallenge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"id", "code_hash", "expires_at", "consumed_at", "attempt_count", "created_at",
			}),
		}).
		Create(challenge).Error
}

func (r *resetRepository) FindForUpdate(ctx context.Context, email string) (*models.PasswordResetChallenge, error) {
	var challenge models.PasswordResetChallenge
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("email = ?", email).First(&challenge).Error; err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *resetRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.PasswordResetChallenge{}).
		Where("id = ?", id).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + 1")).Error; err != nil {
		return 0, err
	}
	var count int
	err := db.Model(&models.PasswordResetChallenge{}).Select("attempt_count").Where("id = ?", id).Scan(&count).Error
	return count, err
}

func (r *resetRepository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PasswordResetChallenge{}).
		Where("id = ? AND consumed_at IS NULL", id).
		UpdateColumn("consumed_at", at)
	return res.RowsAffected, res.Error
}

func (r *resetRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.PasswordResetChallenge{})
	return res.RowsAffected, res.Error
}
