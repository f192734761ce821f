// Package registry knows every outbox event type: its aggregate, the topic it
// is published on and the payload struct it decodes into.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/config"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a validated outbox row with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type topicKind int

const (
	orderTopic topicKind = iota
	notificationTopic
)

type eventSpec struct {
	topic   topicKind
	payload func() any
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// events lists every event type the platform emits. All of them are order
// aggregates; carrier updates and nudges are buyer-facing notifications.
var events = map[enums.OutboxEventType]eventSpec{
	enums.EventOrderCreated:         {orderTopic, payloadOf[payloads.OrderCreatedEvent]()},
	enums.EventOrderStatusChanged:   {orderTopic, payloadOf[payloads.OrderStatusChangedEvent]()},
	enums.EventOrderTrackingUpdated: {notificationTopic, payloadOf[payloads.OrderTrackingUpdatedEvent]()},
	enums.EventPaymentIntentCreated: {orderTopic, payloadOf[payloads.PaymentIntentCreatedEvent]()},
	enums.EventPaymentCaptured:      {orderTopic, payloadOf[payloads.PaymentCapturedEvent]()},
	enums.EventCODSelected:          {orderTopic, payloadOf[payloads.CODSelectedEvent]()},
	enums.EventCashCollected:        {orderTopic, payloadOf[payloads.CashCollectedEvent]()},
	enums.EventOrderRefunded:        {orderTopic, payloadOf[payloads.OrderRefundedEvent]()},
	enums.EventFarmerPayoutRecorded: {orderTopic, payloadOf[payloads.FarmerPayoutRecordedEvent]()},
	enums.EventOrderPendingNudge:    {notificationTopic, payloadOf[payloads.OrderPendingNudgeEvent]()},
}

// PayloadFactories returns a fresh payload constructor per event type.
func PayloadFactories() map[enums.OutboxEventType]func() any {
	out := make(map[enums.OutboxEventType]func() any, len(events))
	for eventType, spec := range events {
		out[eventType] = spec.payload
	}
	return out
}

// EventRegistry resolves outbox rows against the known event types.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds every event type to its configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[topicKind]string{
		orderTopic:        cfg.OrdersTopic,
		notificationTopic: cfg.NotificationTopic,
	}
	if topics[orderTopic] == "" {
		return nil, errors.New("orders topic is required")
	}
	if topics[notificationTopic] == "" {
		return nil, errors.New("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(events))}
	for eventType, spec := range events {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateOrder,
			Topic:          topics[spec.topic],
			PayloadFactory: spec.payload,
		}
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row itself is bad.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > outbox.CurrentEnvelopeVersion {
		return nil, permanent("unsupported envelope version %d", env.Version)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
