package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/pagination"
)

// Repository defines persistence operations for the purchases table. Every status
// write is conditional on the expected source status and reports rows affected.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	Decide(ctx context.Context, id uuid.UUID, params DecisionParams) (int64, error)
	Admit(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) (int64, error)
	ReplaceProof(ctx context.Context, id uuid.UUID, proofRef string, at time.Time) (int64, error)
	List(ctx context.Context, filter Filter, cursor *pagination.Cursor, limit int) ([]models.Purchase, error)
	ListForBuyer(ctx context.Context, userID uuid.UUID, email string, limit int) ([]models.Purchase, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
	CountByKindAndStatus(ctx context.Context) ([]StatusCount, error)
}

// DecisionParams carries the columns written by the decide update.
type DecisionParams struct {
	Status          enums.PurchaseStatus
	DecidedAt       time.Time
	DecidedBy       uuid.UUID
	Note            *string
	AccessExpiresAt *time.Time
}

// Filter narrows list and export queries.
type Filter struct {
	Kind   *enums.ProductKind
	Status *enums.PurchaseStatus
}

// StatusCount is one cell of the admin dashboard.
type StatusCount struct {
	Kind   enums.ProductKind    `json:"kind" gorm:"column:product_kind"`
	Status enums.PurchaseStatus `json:"status" gorm:"column:status"`
	Count  int64                `json:"count" gorm:"column:count"`
}

// ChallengeIssuer sends a one-time code for a purchase on the new-account path.
type ChallengeIssuer interface {
	IssueChallenge(ctx context.Context, email string, purchaseID uuid.UUID) error
}

// IssuerFunc adapts a function to ChallengeIssuer.
type IssuerFunc func(ctx context.Context, email string, purchaseID uuid.UUID) error

func (f IssuerFunc) IssueChallenge(ctx context.Context, email string, purchaseID uuid.UUID) error {
	return f(ctx, email, purchaseID)
}
