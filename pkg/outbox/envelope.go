package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID *uuid.UUID      `json:"userId,omitempty"`
	Role   enums.ActorRole `json:"role"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewActorRef builds an ActorRef, omitting the user id for system actors.
func NewActorRef(userID uuid.UUID, role enums.ActorRole) *ActorRef {
	ref := &ActorRef{Role: role}
	if userID != uuid.Nil {
		id := userID
		ref.UserID = &id
	}
	return ref
}
