package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type attribute values the settlements service cares about. The
// marketplace publishes many more; everything else is acked and skipped.
const (
	TypeOrderPaid = "order.paid"
)

// AttributeEventType is the Pub/Sub message attribute carrying the event type.
const AttributeEventType = "event_type"

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID  uuid.UUID  `json:"userId"`
	StoreID *uuid.UUID `json:"storeId,omitempty"`
	Role    string     `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure published by the
// marketplace's outbox. EventID is the deduplication handle for consumers.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
