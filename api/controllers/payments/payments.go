package payments

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/api/middleware"
	"github.com/farmlink/farmlink-backend/api/responses"
	"github.com/farmlink/farmlink-backend/api/validators"
	internalorders "github.com/farmlink/farmlink-backend/internal/orders"
	internalpayments "github.com/farmlink/farmlink-backend/internal/payments"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
)

type orderRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid"`
}

type verifyRequest struct {
	OrderID           string `json:"orderId" validate:"required,uuid"`
	RazorpayOrderID   string `json:"razorpayOrderId" validate:"required,max=64"`
	RazorpayPaymentID string `json:"razorpayPaymentId" validate:"required,max=64"`
	RazorpaySignature string `json:"razorpaySignature" validate:"required,max=256"`
}

type verifyResponse struct {
	Order     *internalorders.OrderDTO `json:"order"`
	PaymentID string                   `json:"paymentId,omitempty"`
	Duplicate bool                     `json:"duplicate"`
	Refunded  bool                     `json:"refunded"`
}

// CreateOrder opens a provider order for an unpaid order and returns the
// checkout parameters.
func CreateOrder(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := decodeOrderRequest(w, r, logg)
		if !ok {
			return
		}
		intent, err := svc.CreatePaymentIntent(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// Verify checks the checkout signature and captures the payment.
func Verify(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var req verifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid orderId"))
			return
		}

		result, err := svc.VerifyPayment(r.Context(), internalpayments.VerifyInput{
			OrderID:           orderID,
			ProviderOrderID:   req.RazorpayOrderID,
			ProviderPaymentID: req.RazorpayPaymentID,
			Signature:         req.RazorpaySignature,
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := verifyResponse{
			Order:     internalorders.NewOrderDTO(result.Order),
			Duplicate: result.Duplicate,
			Refunded:  result.Refunded,
		}
		if result.Record != nil {
			resp.PaymentID = result.Record.ProviderPaymentID
		}
		responses.WriteSuccess(w, resp)
	}
}

// ConfirmCOD switches an unpaid order to cash on delivery.
func ConfirmCOD(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := decodeOrderRequest(w, r, logg)
		if !ok {
			return
		}
		order, err := svc.ConfirmCOD(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// CODCollected records that the farmer received the cash.
func CODCollected(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmCODCollected(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

func decodeOrderRequest(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r, logg)
	if !ok {
		return auth.Actor{}, uuid.Nil, false
	}
	var req orderRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, uuid.Nil, false
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid orderId"))
		return auth.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
		return auth.Actor{}, false
	}
	return actor, true
}
