package enums

import "fmt"

// PurchaseStatus tracks a purchase through identity check and moderation.
type PurchaseStatus string

const (
	PurchaseStatusPendingIdentity   PurchaseStatus = "pending_identity"
	PurchaseStatusPendingModeration PurchaseStatus = "pending_moderation"
	PurchaseStatusApproved          PurchaseStatus = "approved"
	PurchaseStatusRejected          PurchaseStatus = "rejected"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPendingIdentity,
	PurchaseStatusPendingModeration,
	PurchaseStatusApproved,
	PurchaseStatusRejected,
}

func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusApproved || s == PurchaseStatusRejected
}

// AcceptsProof reports whether a payment proof may still be attached or replaced.
func (s PurchaseStatus) AcceptsProof() bool {
	return s == PurchaseStatusPendingIdentity || s == PurchaseStatusPendingModeration
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}

// PurchaseStatuses returns every known status in lifecycle order.
func PurchaseStatuses() []PurchaseStatus {
	out := make([]PurchaseStatus, len(validPurchaseStatuses))
	copy(out, validPurchaseStatuses)
	return out
}
