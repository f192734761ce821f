package enums

import "fmt"

// TrackingStatusKey labels one entry in an order's tracking ledger. Each key
// appears at most once per order.
type TrackingStatusKey string

const (
	TrackingOrderPlaced     TrackingStatusKey = "order_placed"
	TrackingAccepted        TrackingStatusKey = "accepted"
	TrackingRejected        TrackingStatusKey = "rejected"
	TrackingPacked          TrackingStatusKey = "packed"
	TrackingShipped         TrackingStatusKey = "shipped"
	TrackingOutForDelivery  TrackingStatusKey = "out_for_delivery"
	TrackingDelivered       TrackingStatusKey = "delivered"
	TrackingCompleted       TrackingStatusKey = "completed"
	TrackingCancelled       TrackingStatusKey = "cancelled"
	TrackingPaymentReceived TrackingStatusKey = "payment_received"
	TrackingCODSelected     TrackingStatusKey = "cod_selected"
	TrackingCashCollected   TrackingStatusKey = "cash_collected"
	TrackingUpdated         TrackingStatusKey = "tracking_updated"
	TrackingRefundInitiated TrackingStatusKey = "refund_initiated"
	TrackingPayoutRecorded  TrackingStatusKey = "payout_recorded"
)

var validTrackingStatusKeys = []TrackingStatusKey{
	TrackingOrderPlaced,
	TrackingAccepted,
	TrackingRejected,
	TrackingPacked,
	TrackingShipped,
	TrackingOutForDelivery,
	TrackingDelivered,
	TrackingCompleted,
	TrackingCancelled,
	TrackingPaymentReceived,
	TrackingCODSelected,
	TrackingCashCollected,
	TrackingUpdated,
	TrackingRefundInitiated,
	TrackingPayoutRecorded,
}

// String implements fmt.Stringer.
func (k TrackingStatusKey) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TrackingStatusKey.
func (k TrackingStatusKey) IsValid() bool {
	for _, candidate := range validTrackingStatusKeys {
		if candidate == k {
			return true
		}
	}
	return false
}

// TrackingKeyForStatus maps an order status onto its ledger key. Pending has
// no ledger key of its own; creation is recorded as order_placed.
func TrackingKeyForStatus(status OrderStatus) (TrackingStatusKey, error) {
	if status == OrderStatusPending || !status.IsValid() {
		return "", fmt.Errorf("no tracking key for status %q", status)
	}
	return TrackingStatusKey(status), nil
}

// ParseTrackingStatusKey converts raw input into a TrackingStatusKey.
func ParseTrackingStatusKey(value string) (TrackingStatusKey, error) {
	for _, candidate := range validTrackingStatusKeys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tracking status key %q", value)
}
