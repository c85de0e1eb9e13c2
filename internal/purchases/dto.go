package purchases

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

// CreateInput is a purchase submission. BuyerUserID is only ever taken from a
// verified session.
type CreateInput struct {
	ProductKind enums.ProductKind
	ProductRef  uuid.UUID
	BuyerName   string
	BuyerEmail  string
	BuyerPhone  string
	BuyerUserID *uuid.UUID
	Amount      decimal.Decimal
	Details     types.PurchaseDetails
	NewAccount  bool
	Password    string
	Proof       proofs.Upload
}

// CreateResult tells the buyer what to do next.
type CreateResult struct {
	PurchaseID uuid.UUID            `json:"purchaseId"`
	Status     enums.PurchaseStatus `json:"status"`
	NextStep   enums.NextStep       `json:"nextStep"`
}

// DecideInput is an administrator decision.
type DecideInput struct {
	PurchaseID uuid.UUID
	Outcome    enums.DecisionOutcome
	Actor      uuid.UUID
	Note       string
}

// ListParams pairs a filter with cursor paging.
type ListParams struct {
	Filter
	Limit  int
	Cursor string
}

// ListResult is one page of purchases.
type ListResult struct {
	Items      []PurchaseDTO `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// PurchaseDTO is the transport shape of a purchase. Pending registration data is
// never exposed.
type PurchaseDTO struct {
	ID                  uuid.UUID             `json:"id"`
	ProductKind         enums.ProductKind     `json:"productKind"`
	ProductRef          uuid.UUID             `json:"productRef"`
	ProductTitle        string                `json:"productTitle,omitempty"`
	BuyerName           string                `json:"buyerName"`
	BuyerEmail          string                `json:"buyerEmail"`
	BuyerPhone          string                `json:"buyerPhone"`
	BuyerUserID         *uuid.UUID            `json:"buyerUserId,omitempty"`
	Details             types.PurchaseDetails `json:"details"`
	Amount              decimal.Decimal       `json:"amount"`
	Currency            enums.Currency        `json:"currency"`
	HasProof            bool                  `json:"hasProof"`
	Status              enums.PurchaseStatus  `json:"status"`
	NewAccountRequested bool                  `json:"newAccountRequested"`
	DecisionNote        *string               `json:"decisionNote,omitempty"`
	DecidedAt           *time.Time            `json:"decidedAt,omitempty"`
	AccessExpiresAt     *time.Time            `json:"accessExpiresAt,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
}

// FromModel maps a purchase row to its transport shape.
func FromModel(p *models.Purchase, title string) PurchaseDTO {
	return PurchaseDTO{
		ID:                  p.ID,
		ProductKind:         p.ProductKind,
		ProductRef:          p.ProductRef,
		ProductTitle:        title,
		BuyerName:           p.BuyerName,
		BuyerEmail:          p.BuyerEmail,
		BuyerPhone:          p.BuyerPhone,
		BuyerUserID:         p.BuyerUserID,
		Details:             p.Details,
		Amount:              p.Amount,
		Currency:            p.Currency,
		HasProof:            p.ProofRef != nil && *p.ProofRef != "",
		Status:              p.Status,
		NewAccountRequested: p.NewAccountRequested,
		DecisionNote:        p.DecisionNote,
		DecidedAt:           p.DecidedAt,
		AccessExpiresAt:     p.AccessExpiresAt,
		CreatedAt:           p.CreatedAt,
	}
}
