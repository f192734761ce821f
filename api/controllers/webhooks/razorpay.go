package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/farmlink/farmlink-backend/api/responses"
	"github.com/farmlink/farmlink-backend/internal/payments"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

const (
	razorpayDedupeScope = "webhook:razorpay"
	maxWebhookBodyBytes = 1 << 20
)

type RazorpayCaptureService interface {
	CaptureFromWebhook(ctx context.Context, payment razorpay.Payment) (*payments.CaptureResult, error)
}

type razorpaySignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type razorpayWebhookGuard interface {
	CheckAndMark(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

// RazorpayWebhook handles provider callbacks. Only payment.captured changes
// state; other events are acknowledged.
func RazorpayWebhook(svc RazorpayCaptureService, verifier razorpaySignatureVerifier, guard razorpayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "razorpay webhook not configured"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := r.Header.Get(razorpay.HeaderSignature)
		if strings.TrimSpace(signature) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "razorpay signature missing"))
			return
		}
		if !verifier.VerifyWebhookSignature(body, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "razorpay signature invalid"))
			return
		}

		event, err := razorpay.ParseWebhookEvent(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		payment, ok := event.CapturedPayment()
		if !ok {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "razorpay_event", event.Event), "razorpay.webhook.ignored")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		deliveryID := strings.TrimSpace(r.Header.Get(razorpay.HeaderEventID))
		if deliveryID == "" {
			deliveryID = event.Event + ":" + payment.ID
		}

		seen, err := guard.CheckAndMark(ctx, razorpayDedupeScope, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"razorpay_event_id":   deliveryID,
				"razorpay_payment_id": payment.ID,
				"razorpay_order_id":   payment.OrderID,
			})
		}

		result, err := svc.CaptureFromWebhook(ctx, *payment)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				if logg != nil {
					logg.Warn(ctx, "razorpay.webhook.unknown_order")
				}
				responses.WriteSuccess(w, nil)
				return
			}
			if releaseErr := guard.Release(ctx, razorpayDedupeScope, deliveryID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "razorpay.webhook.release_failed", releaseErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"duplicate": result.Duplicate,
				"refunded":  result.Refunded,
				"surplus":   result.Surplus,
			})
			if result.Surplus {
				logg.Warn(ctx, "razorpay.webhook.surplus_refunded")
			} else {
				logg.Info(ctx, "razorpay.webhook.captured")
			}
		}
		responses.WriteSuccess(w, nil)
	}
}
