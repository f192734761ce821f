package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/api/middleware"
	"github.com/farmlink/farmlink-backend/api/responses"
	"github.com/farmlink/farmlink-backend/api/validators"
	internalorders "github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

const maxNoteLength = 500

// Refunder closes the money side of a cancelled or rejected order.
type Refunder interface {
	CancelWithRefund(ctx context.Context, orderID uuid.UUID, actor auth.Actor, reason enums.RefundReason) (*models.Order, error)
}

type createOrderRequest struct {
	ProduceID       string          `json:"produceId" validate:"required,uuid"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            types.Unit      `json:"unit"`
	DeliveryAddress *types.Location `json:"deliveryAddress"`
	Note            *string         `json:"note"`
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note"`
}

type cancelRequest struct {
	Note *string `json:"note"`
}

type trackingDetailsRequest struct {
	TrackingNumber    string           `json:"trackingNumber" validate:"required,max=64"`
	CarrierName       string           `json:"carrierName" validate:"required,max=64"`
	ShippingCost      *decimal.Decimal `json:"shippingCost"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery"`
	Location          *types.Location  `json:"location"`
}

// Create places a new order at the listing's current price.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		produceID, err := uuid.Parse(req.ProduceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid produceId"))
			return
		}

		order, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			Actor:           actor,
			ProduceID:       produceID,
			Quantity:        req.Quantity,
			Unit:            req.Unit,
			DeliveryAddress: req.DeliveryAddress,
			Note:            validators.OptionalString(req.Note, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

// Get returns the order with its tracking ledger and payment step.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view.DTO())
	}
}

// UpdateStatus applies a farmer or admin transition. Rejecting a paid order
// refunds it, and repeating the reject retries a refund that failed.
func UpdateStatus(svc internalorders.Service, refunder Refunder, logg *logger.Logger) http.HandlerFunc {
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

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"status": req.Status}))
			return
		}

		order, err := svc.ApplyTransition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Actor:   actor,
			Target:  target,
			Note:    validators.OptionalString(req.Note, maxNoteLength),
		})
		if err != nil {
			if order = owedRefund(r.Context(), svc, orderID, actor, target, err); order == nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if needsRefund(order) {
			order, err = refunder.CancelWithRefund(r.Context(), order.ID, actor, "")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// Cancel lets the buyer withdraw an order and refunds it when already paid.
// Repeating the call on a cancelled but still paid order retries the refund.
func Cancel(svc internalorders.Service, refunder Refunder, logg *logger.Logger) http.HandlerFunc {
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

		var req cancelRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.ApplyTransition(r.Context(), internalorders.TransitionInput{
			OrderID: orderID,
			Actor:   actor,
			Target:  enums.OrderStatusCancelled,
			Note:    validators.OptionalString(req.Note, maxNoteLength),
		})
		if err != nil {
			if order = owedRefund(r.Context(), svc, orderID, actor, enums.OrderStatusCancelled, err); order == nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if needsRefund(order) {
			order, err = refunder.CancelWithRefund(r.Context(), order.ID, actor, enums.RefundReasonCancelled)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// TrackingDetails records carrier information on a shipped order.
func TrackingDetails(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req trackingDetailsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateTrackingDetails(r.Context(), internalorders.TrackingDetailsInput{
			OrderID:           orderID,
			Actor:             actor,
			TrackingNumber:    req.TrackingNumber,
			CarrierName:       req.CarrierName,
			ShippingCost:      req.ShippingCost,
			EstimatedDelivery: req.EstimatedDelivery,
			Location:          req.Location,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// owedRefund returns the order when a repeated transition to target failed
// only because the order is already there and its refund never completed.
// It returns nil in every other case.
func owedRefund(ctx context.Context, svc internalorders.Service, orderID uuid.UUID, actor auth.Actor, target enums.OrderStatus, err error) *models.Order {
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition) {
		return nil
	}
	view, viewErr := svc.Get(ctx, orderID, actor)
	if viewErr != nil || view.Order.Status != target || !needsRefund(view.Order) {
		return nil
	}
	return view.Order
}

func needsRefund(order *models.Order) bool {
	if order == nil || order.PaymentStatus != enums.PaymentStatusPaid {
		return false
	}
	return order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusRejected
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
		return auth.Actor{}, false
	}
	return actor, true
}
