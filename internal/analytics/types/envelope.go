package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// Envelope is an outbox event as received from Pub/Sub.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID                 `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Version       int                       `json:"version"`
	ActorRole     enums.ActorRole           `json:"actor_role,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}
