package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

var errEmptyPayload = errors.New("empty payload")

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type versioned struct {
	event   enums.OutboxEventType
	version int
}

func (v versioned) String() string { return fmt.Sprintf("%s@v%d", v.event, v.version) }

// DecoderRegistry maps an envelope's (type, version) to its payload struct.
// Register everything before handing the registry to a consumer; lookups are
// not synchronised with writes.
type DecoderRegistry struct {
	decoders map[versioned]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[versioned]decoderFunc{}}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.decoders[versioned{event: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	key := versioned{event: eventType, version: version}
	decode, ok := r.decoders[key]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoDecoder, key)
	}
	out, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func jsonDecoder[T any]() decoderFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, errEmptyPayload
		}
		out := new(T)
		if err := json.Unmarshal(trimmed, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// NewPurchaseDecoders knows the v1 payload of every purchase event.
func NewPurchaseDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventPurchaseSubmitted, 1, jsonDecoder[payloads.PurchaseSubmittedEvent]())
	reg.Register(enums.EventPurchaseDecided, 1, jsonDecoder[payloads.PurchaseDecidedEvent]())
	reg.Register(enums.EventPurchaseModerationOverdue, 1, jsonDecoder[payloads.PurchaseModerationOverdueEvent]())
	return reg
}
