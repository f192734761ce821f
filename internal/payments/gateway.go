package payments

import (
	"context"

	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

// Gateway is the provider surface used by the payment service.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	VerifyPaymentSignature(providerOrderID, providerPaymentID, signature string) bool
	KeyID() string
	Currency() string
}

var _ Gateway = (*razorpay.Client)(nil)
