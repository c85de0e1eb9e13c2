package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PurchaseDetails holds the product specific fields captured with a purchase.
// Consultations and e-reports carry birth data; courses usually carry nothing.
type PurchaseDetails struct {
	DateOfBirth string `json:"date_of_birth,omitempty"`
	BirthTime   string `json:"birth_time,omitempty"`
	BirthPlace  string `json:"birth_place,omitempty"`
	Questions   string `json:"questions,omitempty"`
}

// IsZero reports whether no detail was captured.
func (d PurchaseDetails) IsZero() bool {
	return d == PurchaseDetails{}
}

// Value marshals the details into a jsonb payload.
func (d PurchaseDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a jsonb payload.
func (d *PurchaseDetails) Scan(src any) error {
	*d = PurchaseDetails{}
	return scanJSON(src, d)
}

// PendingAccount is the registration data bundled with a new-account purchase.
// It is held on the purchase until the buyer proves ownership of the email.
type PendingAccount struct {
	FullName     string          `json:"full_name,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	PasswordHash string          `json:"password_hash,omitempty"`
	Birth        PurchaseDetails `json:"birth,omitempty"`
}

// IsZero reports whether no pending registration is stored.
func (p PendingAccount) IsZero() bool {
	return p.PasswordHash == "" && p.FullName == ""
}

// Value marshals the account into jsonb, or NULL once cleared.
func (p PendingAccount) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a jsonb payload; NULL yields the zero value.
func (p *PendingAccount) Scan(src any) error {
	*p = PendingAccount{}
	return scanJSON(src, p)
}

func scanJSON(src any, dest any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("json column: unsupported source %T", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
