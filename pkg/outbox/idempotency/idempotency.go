// Package idempotency keeps Pub/Sub consumers from handling the same outbox
// event twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sacrednumerology/sacred-backend/pkg/redis"
)

const (
	markerPending = "pending"
	markerDone    = "done"

	// DefaultLease is how long a claimed event stays blocked if its handler dies.
	DefaultLease = 5 * time.Minute
)

// Claim is the outcome of trying to take an event for processing.
type Claim int

const (
	// Acquired means the caller owns the event and must Complete or Release it.
	Acquired Claim = iota
	// Done means some delivery already handled the event.
	Done
	// InFlight means another delivery holds the event right now.
	InFlight
)

func (c Claim) String() string {
	switch c {
	case Acquired:
		return "acquired"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("claim(%d)", int(c))
	}
}

// Manager guards event handling per consumer. Keys follow
// `sn:idempotency:evt:<consumer>:<event_id>` and hold either a pending lease or
// a done marker kept for the configured TTL.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := DefaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Claim takes the event for this consumer unless it is already done or held.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	// one retry covers a holder releasing between SETNX and GET
	for range 2 {
		ok, err := m.store.SetNX(ctx, key, markerPending, m.lease)
		if err != nil {
			return InFlight, err
		}
		if ok {
			return Acquired, nil
		}
		marker, err := m.store.Get(ctx, key)
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			return InFlight, err
		case marker == markerDone:
			return Done, nil
		default:
			return InFlight, nil
		}
	}
	return InFlight, nil
}

// Complete marks a claimed event handled.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release gives a claimed event back so a redelivery can retry it.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
