package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/farmlink/farmlink-backend/internal/analytics/types"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
)

// decodeEnvelope turns a published outbox message into an analytics
// envelope. Routing data comes from attributes; the body supplies event id,
// timestamp, actor and data, with attributes as fallback. Every bad
// attribute is reported, not just the first.
func decodeEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attrs := attributes(msg.Attributes)

	var errs error
	eventType, err := enums.ParseOutboxEventType(attrs.get("event_type"))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("event_type: %w", err))
	}
	aggregateType := enums.OutboxAggregateType(attrs.get("aggregate_type"))
	if !aggregateType.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("aggregate_type: unsupported %q", aggregateType))
	}
	aggregateID, err := uuid.Parse(attrs.get("aggregate_id"))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("aggregate_id: %w", err))
	}
	eventID := firstNonEmpty(strings.TrimSpace(body.EventID), attrs.get("event_id"))
	if eventID == "" {
		errs = multierr.Append(errs, errors.New("event_id missing"))
	}
	if errs != nil {
		return nil, errs
	}

	env := &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    body.OccurredAt,
		Version:       body.Version,
		Payload:       body.Data,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = attrs.time("created_at")
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if body.Actor != nil {
		env.ActorRole = body.Actor.Role
	}
	return env, nil
}

type attributes map[string]string

func (a attributes) get(key string) string {
	return strings.TrimSpace(a[key])
}

// time parses an RFC 3339 attribute, yielding the zero time when absent or
// malformed.
func (a attributes) time(key string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, a.get(key))
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
