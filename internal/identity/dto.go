package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// Challenge describes a code that was just sent. The code itself never leaves the service.
type Challenge struct {
	PurchaseID uuid.UUID `json:"purchaseId"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type VerifyInput struct {
	Email      string
	PurchaseID uuid.UUID
	Code       string
}

// VerifyResult names the account created by a successful verification.
type VerifyResult struct {
	PurchaseID uuid.UUID            `json:"purchaseId"`
	Status     enums.PurchaseStatus `json:"status"`
	UserID     uuid.UUID            `json:"userId"`
	Email      string               `json:"-"`
	Role       enums.UserRole       `json:"-"`
}

// ResetChallenge is returned for every reset request, whether or not an
// account exists for the email.
type ResetChallenge struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetCheckInput confirms a reset code before the new password is chosen.
type ResetCheckInput struct {
	Email string
	Code  string
}

// ResetPasswordInput replaces the password of the account that received Code.
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}
