package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// PurchaseSubmittedEvent fires when a purchase reaches the moderation queue.
// Summary is the human-readable order text forwarded to the admin WhatsApp chat.
type PurchaseSubmittedEvent struct {
	PurchaseID  uuid.UUID         `json:"purchaseId"`
	ProductKind enums.ProductKind `json:"productKind"`
	ProductRef  uuid.UUID         `json:"productRef"`
	ProductName string            `json:"productName"`
	BuyerName   string            `json:"buyerName"`
	BuyerEmail  string            `json:"buyerEmail"`
	BuyerPhone  string            `json:"buyerPhone"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    enums.Currency    `json:"currency"`
	ProofRef    string            `json:"proofRef"`
	Summary     string            `json:"summary"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// PurchaseDecidedEvent fires exactly once per purchase when it is approved or rejected.
type PurchaseDecidedEvent struct {
	PurchaseID      uuid.UUID             `json:"purchaseId"`
	ProductKind     enums.ProductKind     `json:"productKind"`
	ProductRef      uuid.UUID             `json:"productRef"`
	ProductName     string                `json:"productName"`
	BuyerName       string                `json:"buyerName"`
	BuyerEmail      string                `json:"buyerEmail"`
	BuyerUserID     *uuid.UUID            `json:"buyerUserId,omitempty"`
	Outcome         enums.DecisionOutcome `json:"outcome"`
	Status          enums.PurchaseStatus  `json:"status"`
	Note            string                `json:"note,omitempty"`
	DecidedBy       uuid.UUID             `json:"decidedBy"`
	DecidedAt       time.Time             `json:"decidedAt"`
	AccessExpiresAt *time.Time            `json:"accessExpiresAt,omitempty"`
	AccountCreated  bool                  `json:"accountCreated"`
	Amount          decimal.Decimal       `json:"amount"`
	Currency        enums.Currency        `json:"currency"`
}

// PurchaseModerationOverdueEvent reminds administrators about a purchase that has
// waited longer than the configured threshold.
type PurchaseModerationOverdueEvent struct {
	PurchaseID  uuid.UUID         `json:"purchaseId"`
	ProductKind enums.ProductKind `json:"productKind"`
	BuyerName   string            `json:"buyerName"`
	BuyerEmail  string            `json:"buyerEmail"`
	SubmittedAt time.Time         `json:"submittedAt"`
	WaitingFor  string            `json:"waitingFor"`
}
