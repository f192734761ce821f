package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery table. Money columns are
// stored in minor units.
type OrderEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       string             `bigquery:"order_id"`
	BuyerID       *string            `bigquery:"buyer_id"`
	FarmerID      *string            `bigquery:"farmer_id"`
	ActorRole     *string            `bigquery:"actor_role"`
	Status        *string            `bigquery:"status"`
	PaymentStatus *string            `bigquery:"payment_status"`
	PaymentSource *string            `bigquery:"payment_source"`
	RefundReason  *string            `bigquery:"refund_reason"`
	Unit          *string            `bigquery:"unit"`
	Quantity      *float64           `bigquery:"quantity"`
	AmountMinor   *int64             `bigquery:"amount_minor"`
	Currency      *string            `bigquery:"currency"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
