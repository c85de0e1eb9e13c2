package audit

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
)

// DecisionRow is one moderation decision in the warehouse.
type DecisionRow struct {
	EventID         string
	PurchaseID      string
	ProductKind     string
	ProductRef      string
	ProductName     string
	BuyerEmail      string
	BuyerUserID     bigquery.NullString
	Outcome         string
	Status          string
	Note            bigquery.NullString
	DecidedBy       string
	DecidedAt       time.Time
	AccessExpiresAt bigquery.NullTimestamp
	AccountCreated  bool
	Amount          string
	Currency        string
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id so a
// redelivered event is deduplicated by the streaming API.
func (r *DecisionRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"event_id":          r.EventID,
		"purchase_id":       r.PurchaseID,
		"product_kind":      r.ProductKind,
		"product_ref":       r.ProductRef,
		"product_name":      r.ProductName,
		"buyer_email":       r.BuyerEmail,
		"buyer_user_id":     r.BuyerUserID,
		"outcome":           r.Outcome,
		"status":            r.Status,
		"note":              r.Note,
		"decided_by":        r.DecidedBy,
		"decided_at":        r.DecidedAt,
		"access_expires_at": r.AccessExpiresAt,
		"account_created":   r.AccountCreated,
		"amount":            r.Amount,
		"currency":          r.Currency,
	}, r.EventID, nil
}

// DecisionPartitionField is the column the decisions table is partitioned on.
const DecisionPartitionField = "decided_at"

// DecisionSchema matches the columns written by Save.
func DecisionSchema() bigquery.Schema {
	required := func(name string, typ bigquery.FieldType) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	nullable := func(name string, typ bigquery.FieldType) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: typ}
	}
	return bigquery.Schema{
		required("event_id", bigquery.StringFieldType),
		required("purchase_id", bigquery.StringFieldType),
		required("product_kind", bigquery.StringFieldType),
		required("product_ref", bigquery.StringFieldType),
		required("product_name", bigquery.StringFieldType),
		required("buyer_email", bigquery.StringFieldType),
		nullable("buyer_user_id", bigquery.StringFieldType),
		required("outcome", bigquery.StringFieldType),
		required("status", bigquery.StringFieldType),
		nullable("note", bigquery.StringFieldType),
		required("decided_by", bigquery.StringFieldType),
		required(DecisionPartitionField, bigquery.TimestampFieldType),
		nullable("access_expires_at", bigquery.TimestampFieldType),
		required("account_created", bigquery.BooleanFieldType),
		// amounts stay decimal strings so no float rounding reaches the warehouse
		required("amount", bigquery.NumericFieldType),
		required("currency", bigquery.StringFieldType),
	}
}

func decisionRow(eventID string, p *payloads.PurchaseDecidedEvent) DecisionRow {
	row := DecisionRow{
		EventID:        eventID,
		PurchaseID:     p.PurchaseID.String(),
		ProductKind:    string(p.ProductKind),
		ProductRef:     p.ProductRef.String(),
		ProductName:    p.ProductName,
		BuyerEmail:     p.BuyerEmail,
		Outcome:        string(p.Outcome),
		Status:         string(p.Status),
		DecidedBy:      p.DecidedBy.String(),
		DecidedAt:      p.DecidedAt.UTC(),
		AccountCreated: p.AccountCreated,
		Amount:         p.Amount.StringFixed(2),
		Currency:       string(p.Currency),
	}
	if p.BuyerUserID != nil {
		row.BuyerUserID = bigquery.NullString{StringVal: p.BuyerUserID.String(), Valid: true}
	}
	if p.Note != "" {
		row.Note = bigquery.NullString{StringVal: p.Note, Valid: true}
	}
	if p.AccessExpiresAt != nil {
		row.AccessExpiresAt = bigquery.NullTimestamp{Timestamp: p.AccessExpiresAt.UTC(), Valid: true}
	}
	return row
}
