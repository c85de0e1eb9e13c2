package enums

import (
	"fmt"
	"strings"
)

// DecisionOutcome is the administrator's verdict on a pending purchase.
type DecisionOutcome string

const (
	DecisionApprove DecisionOutcome = "approve"
	DecisionReject  DecisionOutcome = "reject"
)

// IsValid reports whether the outcome is known.
func (d DecisionOutcome) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// TargetStatus returns the terminal status the outcome leads to.
func (d DecisionOutcome) TargetStatus() PurchaseStatus {
	if d == DecisionApprove {
		return PurchaseStatusApproved
	}
	return PurchaseStatusRejected
}

// ParseDecisionOutcome converts raw input into a DecisionOutcome.
func ParseDecisionOutcome(value string) (DecisionOutcome, error) {
	switch DecisionOutcome(strings.ToLower(strings.TrimSpace(value))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", fmt.Errorf("invalid decision outcome %q", value)
}

// NextStep tells the buyer what happens after submitting a purchase.
type NextStep string

const (
	NextStepAwaitOTP        NextStep = "await_otp"
	NextStepAwaitModeration NextStep = "await_moderation"
)
