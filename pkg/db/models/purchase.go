package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

// Purchase is the ledger row tracking a purchase from submission to decision.
type Purchase struct {
	ID                  uuid.UUID             `gorm:"type:uuid;primaryKey"`
	ProductKind         enums.ProductKind     `gorm:"column:product_kind;not null"`
	ProductRef          uuid.UUID             `gorm:"column:product_ref;type:uuid;not null"`
	BuyerName           string                `gorm:"column:buyer_name;not null"`
	BuyerEmail          string                `gorm:"column:buyer_email;not null"`
	BuyerPhone          string                `gorm:"column:buyer_phone;not null"`
	BuyerUserID         *uuid.UUID            `gorm:"column:buyer_user_id;type:uuid"`
	Details             types.PurchaseDetails `gorm:"column:domain_details;type:jsonb;not null"`
	Amount              decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency            enums.Currency        `gorm:"column:currency;not null"`
	ProofRef            *string               `gorm:"column:proof_ref"`
	Status              enums.PurchaseStatus  `gorm:"column:status;not null"`
	NewAccountRequested bool                  `gorm:"column:new_account_requested;not null;default:false"`
	PendingAccount      types.PendingAccount  `gorm:"column:pending_account;type:jsonb"`
	DecisionNote        *string               `gorm:"column:decision_note"`
	DecidedBy           *uuid.UUID            `gorm:"column:decided_by;type:uuid"`
	DecidedAt           *time.Time            `gorm:"column:decided_at"`
	AccessExpiresAt     *time.Time            `gorm:"column:access_expires_at"`
	CreatedAt           time.Time             `gorm:"column:created_at"`
	UpdatedAt           time.Time             `gorm:"column:updated_at"`
}
