package enums

import "fmt"

// PaymentProvider identifies who captured the money.
type PaymentProvider string

const (
	PaymentProviderRazorpay PaymentProvider = "razorpay"
	PaymentProviderCOD      PaymentProvider = "cod"
)

// PaymentSource records which path produced a payment record.
type PaymentSource string

const (
	PaymentSourceClientVerify  PaymentSource = "client_verify"
	PaymentSourceWebhook       PaymentSource = "webhook"
	PaymentSourceCODCollection PaymentSource = "cod_collection"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceClientVerify,
	PaymentSourceWebhook,
	PaymentSourceCODCollection,
}

// IsValid reports whether the value is a known PaymentSource.
func (s PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// RefundReason explains why money is being returned to the buyer.
type RefundReason string

const (
	RefundReasonCancelled   RefundReason = "cancelled"
	RefundReasonRejected    RefundReason = "rejected"
	RefundReasonLateCapture RefundReason = "late_capture"
	// RefundReasonDuplicateCapture returns a capture the order could not take,
	// such as a second payment on an order that is already paid.
	RefundReasonDuplicateCapture RefundReason = "duplicate_capture"
)

var validRefundReasons = []RefundReason{
	RefundReasonCancelled,
	RefundReasonRejected,
	RefundReasonLateCapture,
	RefundReasonDuplicateCapture,
}

// IsValid reports whether the value is a known RefundReason.
func (r RefundReason) IsValid() bool {
	for _, candidate := range validRefundReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// RefundReasonForStatus picks the refund reason matching a terminal status.
func RefundReasonForStatus(status OrderStatus) (RefundReason, error) {
	switch status {
	case OrderStatusCancelled:
		return RefundReasonCancelled, nil
	case OrderStatusRejected:
		return RefundReasonRejected, nil
	default:
		return "", fmt.Errorf("status %q does not trigger a refund", status)
	}
}

// RefundStatus tracks an externally executed refund.
type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "requested"
)
