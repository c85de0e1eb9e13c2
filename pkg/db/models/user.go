package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

// User represents an account able to log in and consume purchased content.
type User struct {
	ID           uuid.UUID             `gorm:"type:uuid;primaryKey"`
	Email        string                `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string                `gorm:"column:password_hash;not null"`
	FullName     string                `gorm:"column:full_name;not null"`
	Phone        *string               `gorm:"column:phone"`
	Birth        types.PurchaseDetails `gorm:"column:birth_details;type:jsonb"`
	Role         enums.UserRole        `gorm:"column:role;not null;default:customer"`
	IsActive     bool                  `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time            `gorm:"column:last_login_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
