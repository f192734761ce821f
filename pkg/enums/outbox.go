package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventOrderTrackingUpdated OutboxEventType = "order_tracking_updated"
	EventPaymentIntentCreated OutboxEventType = "payment_intent_created"
	EventPaymentCaptured      OutboxEventType = "payment_captured"
	EventCODSelected          OutboxEventType = "cod_selected"
	EventCashCollected        OutboxEventType = "cash_collected"
	EventOrderRefunded        OutboxEventType = "order_refunded"
	EventFarmerPayoutRecorded OutboxEventType = "farmer_payout_recorded"
	EventOrderPendingNudge    OutboxEventType = "order_pending_nudge"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderTrackingUpdated,
	EventPaymentIntentCreated,
	EventPaymentCaptured,
	EventCODSelected,
	EventCashCollected,
	EventOrderRefunded,
	EventFarmerPayoutRecorded,
	EventOrderPendingNudge,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
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
