package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
)

// PaymentIntent is what the checkout widget needs to open the provider flow.
type PaymentIntent struct {
	OrderID         uuid.UUID       `json:"orderId"`
	ProviderOrderID string          `json:"providerOrderId"`
	Amount          decimal.Decimal `json:"amount"`
	AmountMinor     int64           `json:"amountMinor"`
	Currency        string          `json:"currency"`
	KeyID           string          `json:"keyId"`
}

// VerifyInput is the client-side confirmation of a checkout.
type VerifyInput struct {
	OrderID           uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	Actor             auth.Actor
}

// CaptureResult reports the order after a capture and whether it was a replay.
type CaptureResult struct {
	Order     *models.Order
	Record    *models.PaymentRecord
	Duplicate bool
	Refunded  bool
	// Surplus marks a capture the order could not take. It was stored and
	// queued for refund while the order stayed unchanged.
	Surplus bool
}
