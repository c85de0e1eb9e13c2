package models

import (
	"time"

	"github.com/google/uuid"
)

// OtpChallenge is the single live passcode for an (email, purchase) pair.
type OtpChallenge struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;not null"`
	PurchaseID   uuid.UUID  `gorm:"column:purchase_id;type:uuid;not null"`
	CodeHash     string     `gorm:"column:code_hash;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	ConsumedAt   *time.Time `gorm:"column:consumed_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}
