package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

// NotificationDelivery records one relay attempt for a purchase event.
type NotificationDelivery struct {
	ID         uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	EventID    uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	PurchaseID uuid.UUID                  `gorm:"column:purchase_id;type:uuid;not null"`
	Channel    enums.NotificationChannel  `gorm:"column:channel;not null"`
	Audience   enums.NotificationAudience `gorm:"column:audience;not null"`
	Recipient  string                     `gorm:"column:recipient;not null"`
	Subject    string                     `gorm:"column:subject;not null"`
	Body       string                     `gorm:"column:body;not null"`
	Link       *string                    `gorm:"column:link"`
	Error      *string                    `gorm:"column:error"`
	SentAt     *time.Time                 `gorm:"column:sent_at"`
	CreatedAt  time.Time                  `gorm:"column:created_at"`
}
