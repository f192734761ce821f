package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a buyer places an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	BuyerID     uuid.UUID         `json:"buyerId"`
	FarmerID    uuid.UUID         `json:"farmerId"`
	ProduceID   uuid.UUID         `json:"produceId"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Unit        enums.Unit        `json:"unit"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Currency    string            `json:"currency"`
	Status      enums.OrderStatus `json:"status"`
}

// OrderStatusChangedEvent is emitted for every accepted transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	BuyerID       uuid.UUID           `json:"buyerId"`
	FarmerID      uuid.UUID           `json:"farmerId"`
	FromStatus    enums.OrderStatus   `json:"fromStatus"`
	ToStatus      enums.OrderStatus   `json:"toStatus"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	Note          *string             `json:"note,omitempty"`
}

// OrderTrackingUpdatedEvent carries new carrier details to the buyer.
type OrderTrackingUpdatedEvent struct {
	OrderID            uuid.UUID  `json:"orderId"`
	BuyerID            uuid.UUID  `json:"buyerId"`
	TrackingNumber     string     `json:"trackingNumber"`
	CarrierName        string     `json:"carrierName"`
	CarrierTrackingURL string     `json:"carrierTrackingUrl"`
	EstimatedDelivery  *time.Time `json:"estimatedDelivery,omitempty"`
}

// PaymentIntentCreatedEvent is emitted once per order when the provider
// intent is stored.
type PaymentIntentCreatedEvent struct {
	OrderID         uuid.UUID       `json:"orderId"`
	ProviderOrderID string          `json:"providerOrderId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// PaymentCapturedEvent is emitted when money is captured online.
type PaymentCapturedEvent struct {
	OrderID           uuid.UUID           `json:"orderId"`
	BuyerID           uuid.UUID           `json:"buyerId"`
	FarmerID          uuid.UUID           `json:"farmerId"`
	PaymentRecordID   uuid.UUID           `json:"paymentRecordId"`
	ProviderPaymentID string              `json:"providerPaymentId"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          string              `json:"currency"`
	Source            enums.PaymentSource `json:"source"`
}

// CODSelectedEvent is emitted when the buyer elects cash on delivery.
type CODSelectedEvent struct {
	OrderID  uuid.UUID       `json:"orderId"`
	BuyerID  uuid.UUID       `json:"buyerId"`
	FarmerID uuid.UUID       `json:"farmerId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CashCollectedEvent is emitted when COD cash is confirmed.
type CashCollectedEvent struct {
	OrderID         uuid.UUID       `json:"orderId"`
	FarmerID        uuid.UUID       `json:"farmerId"`
	PaymentRecordID uuid.UUID       `json:"paymentRecordId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// OrderRefundedEvent asks finance to return money to the buyer.
type OrderRefundedEvent struct {
	OrderID        uuid.UUID          `json:"orderId"`
	BuyerID        uuid.UUID          `json:"buyerId"`
	RefundIntentID uuid.UUID          `json:"refundIntentId"`
	Amount         decimal.Decimal    `json:"amount"`
	Currency       string             `json:"currency"`
	Reason         enums.RefundReason `json:"reason"`
}

// FarmerPayoutRecordedEvent records the admin acknowledgement of a payout.
type FarmerPayoutRecordedEvent struct {
	OrderID   uuid.UUID       `json:"orderId"`
	FarmerID  uuid.UUID       `json:"farmerId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaidOutAt time.Time       `json:"paidOutAt"`
	PaidOutBy uuid.UUID       `json:"paidOutBy"`
}

// OrderPendingNudgeEvent reminds a farmer about an undecided order.
type OrderPendingNudgeEvent struct {
	OrderID      uuid.UUID `json:"orderId"`
	FarmerID     uuid.UUID `json:"farmerId"`
	BuyerID      uuid.UUID `json:"buyerId"`
	PendingSince time.Time `json:"pendingSince"`
}
