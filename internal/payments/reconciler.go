package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/internal/tracking"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/metrics"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
)

// Reconciler moves paid orders that were closed without fulfilment to refunded.
type Reconciler struct {
	orders   orders.Repository
	payments Repository
	tx       txRunner
	outbox   outboxPublisher
	ledger   tracking.Ledger
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type ReconcilerParams struct {
	Orders   orders.Repository
	Payments Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   tracking.Ledger
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	if p.Orders == nil || p.Payments == nil {
		return nil, fmt.Errorf("repositories required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("tracking ledger required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		orders:   p.Orders,
		payments: p.Payments,
		tx:       p.Tx,
		outbox:   p.Outbox,
		ledger:   p.Ledger,
		metrics:  p.Metrics,
		logg:     logg,
		now:      clock,
	}, nil
}

// CancelWithRefund refunds a cancelled or rejected order. Unpaid and already
// refunded orders are returned unchanged.
func (r *Reconciler) CancelWithRefund(ctx context.Context, orderID uuid.UUID, actor auth.Actor, reason enums.RefundReason) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var result *models.Order
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := orders.Load(ctx, r.orders.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusCancelled && order.Status != enums.OrderStatusRejected {
			return forbidden(order, "only cancelled or rejected orders can be refunded")
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			result = order
			return nil
		}
		if reason == "" {
			reason, err = enums.RefundReasonForStatus(order.Status)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve refund reason")
			}
		}
		if !reason.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid refund reason")
		}
		result, err = r.refundTx(ctx, tx, order, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Reconciler) refundTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor auth.Actor, reason enums.RefundReason) (*models.Order, error) {
	paymentRepo := r.payments.WithTx(tx)
	now := r.now().UTC()

	record, err := paymentRepo.FindActiveByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}
	var recordID *uuid.UUID
	if record != nil {
		if err := paymentRepo.MarkRefunded(ctx, record.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}
		id := record.ID
		recordID = &id
	}

	updated, err := orders.Save(ctx, r.orders.WithTx(tx), order, map[string]any{"payment_status": enums.PaymentStatusRefunded})
	if err != nil {
		return nil, err
	}

	intent := &models.RefundIntent{
		ID:              uuid.New(),
		OrderID:         order.ID,
		RefundKey:       orderRefundKey(order.ID),
		PaymentRecordID: recordID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Reason:          reason,
		Status:          enums.RefundStatusRequested,
		RequestedBy:     actor.UserIDPtr(),
	}
	inserted, err := paymentRepo.InsertRefundIntentIgnoreDuplicate(ctx, intent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert refund intent")
	}
	if !inserted {
		intent, err = paymentRepo.FindRefundIntent(ctx, order.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund intent vanished")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund intent")
		}
	}

	if _, err := r.ledger.Append(ctx, tx, tracking.Entry{
		OrderID:    order.ID,
		StatusKey:  enums.TrackingRefundInitiated,
		OccurredAt: now,
		Actor:      actor,
	}); err != nil {
		return nil, err
	}
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(actor.UserID, actor.Role),
		Data: payloads.OrderRefundedEvent{
			OrderID:        order.ID,
			BuyerID:        order.BuyerID,
			RefundIntentID: intent.ID,
			Amount:         intent.Amount,
			Currency:       intent.Currency,
			Reason:         intent.Reason,
		},
	}); err != nil {
		return nil, err
	}

	r.metrics.IncRefund(string(reason))
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"reason":   string(reason),
	}), "refund intent recorded")
	return updated, nil
}

// refundSurplusTx stores a capture the order cannot take and queues its money
// back to the buyer. The order itself is left as it is.
func (r *Reconciler) refundSurplusTx(ctx context.Context, tx *gorm.DB, order *models.Order, in captureInput) (*models.PaymentRecord, error) {
	paymentRepo := r.payments.WithTx(tx)
	now := r.now().UTC()

	amount, currency := order.TotalAmount, order.Currency
	if in.amount != nil {
		amount = *in.amount
	}
	if in.currency != "" {
		currency = strings.ToUpper(in.currency)
	}
	providerOrderID := in.providerOrderID
	record := &models.PaymentRecord{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Provider:          enums.PaymentProviderRazorpay,
		ProviderOrderID:   &providerOrderID,
		ProviderPaymentID: in.providerPaymentID,
		Signature:         in.signature,
		Amount:            amount,
		Currency:          currency,
		CapturedAt:        now,
		MethodDetail:      in.methodDetail,
		Source:            in.source,
		RefundedAt:        &now,
	}
	inserted, err := paymentRepo.InsertPaymentIgnoreDuplicate(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert surplus payment record")
	}
	if !inserted {
		stored, err := paymentRepo.FindByProviderPaymentID(ctx, in.providerPaymentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
		}
		return stored, nil
	}

	intent := &models.RefundIntent{
		ID:              uuid.New(),
		OrderID:         order.ID,
		RefundKey:       captureRefundKey(record.ProviderPaymentID),
		PaymentRecordID: &record.ID,
		Amount:          amount,
		Currency:        currency,
		Reason:          enums.RefundReasonDuplicateCapture,
		Status:          enums.RefundStatusRequested,
		RequestedBy:     in.actor.UserIDPtr(),
	}
	if _, err := paymentRepo.InsertRefundIntentIgnoreDuplicate(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert refund intent")
	}
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(in.actor.UserID, in.actor.Role),
		Data: payloads.OrderRefundedEvent{
			OrderID:        order.ID,
			BuyerID:        order.BuyerID,
			RefundIntentID: intent.ID,
			Amount:         intent.Amount,
			Currency:       intent.Currency,
			Reason:         intent.Reason,
		},
	}); err != nil {
		return nil, err
	}

	r.metrics.IncRefund(string(enums.RefundReasonDuplicateCapture))
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"order_id":            order.ID.String(),
		"provider_payment_id": record.ProviderPaymentID,
		"payment_status":      string(order.PaymentStatus),
		"payment_method":      string(order.PaymentMethod),
	}), "surplus capture queued for refund")
	return record, nil
}
