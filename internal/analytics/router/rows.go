package router

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/internal/analytics/types"
	"github.com/farmlink/farmlink-backend/internal/analytics/writer"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
)

// BuildRow flattens a decoded payload into an order_events row.
func BuildRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.OrderEventRow{}, err
	}
	row := types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		OrderID:    envelope.AggregateID.String(),
		ActorRole:  strPtr(string(envelope.ActorRole)),
		Payload:    raw,
	}

	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		row.BuyerID, row.FarmerID = idPtr(p.BuyerID), idPtr(p.FarmerID)
		row.Status = strPtr(string(p.Status))
		row.Unit = strPtr(string(p.Unit))
		qty := p.Quantity.InexactFloat64()
		row.Quantity = &qty
		row.AmountMinor, row.Currency = minorUnits(p.TotalAmount), strPtr(p.Currency)
	case *payloads.OrderStatusChangedEvent:
		row.BuyerID, row.FarmerID = idPtr(p.BuyerID), idPtr(p.FarmerID)
		row.Status = strPtr(string(p.ToStatus))
		row.PaymentStatus = strPtr(string(p.PaymentStatus))
	case *payloads.OrderTrackingUpdatedEvent:
		row.BuyerID = idPtr(p.BuyerID)
	case *payloads.PaymentIntentCreatedEvent:
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.PaymentCapturedEvent:
		row.BuyerID, row.FarmerID = idPtr(p.BuyerID), idPtr(p.FarmerID)
		row.PaymentStatus = strPtr(string(enums.PaymentStatusPaid))
		row.PaymentSource = strPtr(string(p.Source))
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.CODSelectedEvent:
		row.BuyerID, row.FarmerID = idPtr(p.BuyerID), idPtr(p.FarmerID)
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.CashCollectedEvent:
		row.FarmerID = idPtr(p.FarmerID)
		row.PaymentStatus = strPtr(string(enums.PaymentStatusPaid))
		row.PaymentSource = strPtr(string(enums.PaymentSourceCODCollection))
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.OrderRefundedEvent:
		row.BuyerID = idPtr(p.BuyerID)
		row.PaymentStatus = strPtr(string(enums.PaymentStatusRefunded))
		row.RefundReason = strPtr(string(p.Reason))
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.FarmerPayoutRecordedEvent:
		row.FarmerID = idPtr(p.FarmerID)
		row.AmountMinor, row.Currency = minorUnits(p.Amount), strPtr(p.Currency)
	case *payloads.OrderPendingNudgeEvent:
		row.BuyerID, row.FarmerID = idPtr(p.BuyerID), idPtr(p.FarmerID)
		row.Status = strPtr(string(enums.OrderStatusPending))
	default:
		return types.OrderEventRow{}, fmt.Errorf("%w: payload %T", ErrUnsupportedEventType, payload)
	}
	return row, nil
}

func minorUnits(amount decimal.Decimal) *int64 {
	v := amount.Shift(2).Round(0).IntPart()
	return &v
}

func idPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
