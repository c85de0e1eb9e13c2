package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePurchase OutboxAggregateType = "purchase"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePurchase,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	// EventPurchaseSubmitted fires when a purchase enters the moderation queue.
	EventPurchaseSubmitted OutboxEventType = "purchase_submitted"
	// EventPurchaseDecided fires once per purchase when an administrator approves or rejects it.
	EventPurchaseDecided OutboxEventType = "purchase_decided"
	// EventPurchaseModerationOverdue fires once for purchases waiting too long for a decision.
	EventPurchaseModerationOverdue OutboxEventType = "purchase_moderation_overdue"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPurchaseSubmitted,
	EventPurchaseDecided,
	EventPurchaseModerationOverdue,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
