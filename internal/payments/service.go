package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

const codPaymentPrefix = "cod_"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service captures buyer payments against orders.
type Service interface {
	CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*PaymentIntent, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*CaptureResult, error)
	CaptureFromWebhook(ctx context.Context, payment razorpay.Payment) (*CaptureResult, error)
	ConfirmCOD(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	ConfirmCODCollected(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
}

type ServiceParams struct {
	Orders     orders.Repository
	Payments   Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Ledger     tracking.Ledger
	Gateway    Gateway
	Reconciler *Reconciler
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	orders     orders.Repository
	payments   Repository
	tx         txRunner
	outbox     outboxPublisher
	ledger     tracking.Ledger
	gateway    Gateway
	reconciler *Reconciler
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
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
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Reconciler == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		orders:     p.Orders,
		payments:   p.Payments,
		tx:         p.Tx,
		outbox:     p.Outbox,
		ledger:     p.Ledger,
		gateway:    p.Gateway,
		reconciler: p.Reconciler,
		metrics:    p.Metrics,
		logg:       logg,
		now:        clock,
	}, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*PaymentIntent, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, err := orders.Load(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := checkBuyerOwner(order, actor); err != nil {
		return nil, err
	}
	if order.ProviderOrderID != nil {
		return s.intentFor(order), nil
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}

	providerOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		AmountMinor: razorpay.ToMinor(order.TotalAmount),
		Currency:    order.Currency,
		Receipt:     order.ID.String(),
		Notes: map[string]string{
			"order_id": order.ID.String(),
			"buyer_id": order.BuyerID.String(),
		},
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
		}
		return nil, err
	}

	var stored *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		current, err := orders.Load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.ProviderOrderID != nil {
			stored = current
			return nil
		}
		if err := checkPayable(current); err != nil {
			return err
		}
		stored, err = orders.Save(ctx, repo, current, map[string]any{"provider_order_id": providerOrder.ID})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentIntentCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.Role),
			Data: payloads.PaymentIntentCreatedEvent{
				OrderID:         current.ID,
				ProviderOrderID: providerOrder.ID,
				Amount:          current.TotalAmount,
				Currency:        current.Currency,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			current, loadErr := orders.Load(ctx, s.orders, orderID)
			if loadErr == nil && current.ProviderOrderID != nil {
				return s.intentFor(current), nil
			}
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":          stored.ID.String(),
		"provider_order_id": *stored.ProviderOrderID,
	}), "payment intent created")
	return s.intentFor(stored), nil
}

func (s *service) intentFor(order *models.Order) *PaymentIntent {
	return &PaymentIntent{
		OrderID:         order.ID,
		ProviderOrderID: *order.ProviderOrderID,
		Amount:          order.TotalAmount,
		AmountMinor:     razorpay.ToMinor(order.TotalAmount),
		Currency:        order.Currency,
		KeyID:           s.gateway.KeyID(),
	}
}

func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*CaptureResult, error) {
	result, err := s.verify(ctx, input)
	s.metrics.IncVerification(string(enums.PaymentSourceClientVerify), outcomeFor(result, err))
	return result, err
}

func (s *service) verify(ctx context.Context, input VerifyInput) (*CaptureResult, error) {
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	providerOrderID := strings.TrimSpace(input.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(input.ProviderPaymentID)
	signature := strings.TrimSpace(input.Signature)
	if providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id, payment id and signature are required")
	}

	order, err := orders.Load(ctx, s.orders, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkBuyerOwner(order, input.Actor); err != nil {
		return nil, err
	}
	if order.ProviderOrderID == nil || *order.ProviderOrderID != providerOrderID {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "payment verification failed").
			WithDetails(map[string]any{"reason": "provider order does not match"})
	}
	if !s.gateway.VerifyPaymentSignature(providerOrderID, providerPaymentID, signature) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id":            order.ID.String(),
			"provider_payment_id": providerPaymentID,
		}), "payment signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "payment verification failed").
			WithDetails(map[string]any{"reason": "signature mismatch"})
	}

	return s.capture(ctx, order.ID, captureInput{
		providerOrderID:   providerOrderID,
		providerPaymentID: providerPaymentID,
		signature:         &signature,
		source:            enums.PaymentSourceClientVerify,
		actor:             input.Actor,
	})
}

// CaptureFromWebhook records a capture whose authenticity was established by
// the webhook signature.
func (s *service) CaptureFromWebhook(ctx context.Context, payment razorpay.Payment) (*CaptureResult, error) {
	result, err := s.captureWebhook(ctx, payment)
	s.metrics.IncVerification(string(enums.PaymentSourceWebhook), outcomeFor(result, err))
	return result, err
}

func (s *service) captureWebhook(ctx context.Context, payment razorpay.Payment) (*CaptureResult, error) {
	providerOrderID := strings.TrimSpace(payment.OrderID)
	providerPaymentID := strings.TrimSpace(payment.ID)
	if providerOrderID == "" || providerPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing identifiers")
	}
	order, err := s.orders.FindByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for provider order").
				WithDetails(map[string]any{"provider_order_id": providerOrderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by provider order")
	}

	amount := razorpay.FromMinor(payment.Amount)
	var detail *string
	if md := payment.MethodDetail(); md != "" {
		detail = &md
	}
	return s.capture(ctx, order.ID, captureInput{
		providerOrderID:   providerOrderID,
		providerPaymentID: providerPaymentID,
		amount:            &amount,
		currency:          payment.Currency,
		methodDetail:      detail,
		source:            enums.PaymentSourceWebhook,
		actor:             auth.SystemActor(),
	})
}

// captureBlocked reports why order cannot take a new capture, or nil.
func captureBlocked(order *models.Order) error {
	switch {
	case order.PaymentStatus == enums.PaymentStatusRefunded:
		return forbidden(order, "refunded orders cannot be paid again")
	case order.PaymentStatus == enums.PaymentStatusPaid:
		return pkgerrors.New(pkgerrors.CodeConflict, "order already paid by a different payment").
			WithDetails(map[string]any{"order_id": order.ID})
	case order.PaymentMethod == enums.PaymentMethodCOD:
		return forbidden(order, "cash on delivery elected")
	}
	return nil
}

type captureInput struct {
	providerOrderID   string
	providerPaymentID string
	signature         *string
	amount            *decimal.Decimal
	currency          string
	methodDetail      *string
	source            enums.PaymentSource
	actor             auth.Actor
}

func (s *service) capture(ctx context.Context, orderID uuid.UUID, in captureInput) (*CaptureResult, error) {
	result := &CaptureResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		paymentRepo := s.payments.WithTx(tx)

		order, err := orders.Load(ctx, orderRepo, orderID)
		if err != nil {
			return err
		}
		existing, err := paymentRepo.FindByProviderPaymentID(ctx, in.providerPaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
		}
		if existing != nil {
			if existing.OrderID != order.ID {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment already recorded for another order")
			}
			result.Order, result.Record, result.Duplicate = order, existing, true
			return nil
		}

		if err := captureBlocked(order); err != nil {
			// webhook captures are money already taken: store and refund them
			if in.source != enums.PaymentSourceWebhook {
				return err
			}
			record, err := s.reconciler.refundSurplusTx(ctx, tx, order, in)
			if err != nil {
				return err
			}
			result.Order, result.Record = order, record
			result.Refunded, result.Surplus = true, true
			return nil
		}
		if in.amount != nil && !in.amount.Equal(order.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodePaymentVerification, "payment verification failed").
				WithDetails(map[string]any{"reason": "amount mismatch", "expected": order.TotalAmount.StringFixed(2), "received": in.amount.StringFixed(2)})
		}
		if in.currency != "" && !strings.EqualFold(in.currency, order.Currency) {
			return pkgerrors.New(pkgerrors.CodePaymentVerification, "payment verification failed").
				WithDetails(map[string]any{"reason": "currency mismatch", "expected": order.Currency, "received": in.currency})
		}

		providerOrderID := in.providerOrderID
		record := &models.PaymentRecord{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Provider:          enums.PaymentProviderRazorpay,
			ProviderOrderID:   &providerOrderID,
			ProviderPaymentID: in.providerPaymentID,
			Signature:         in.signature,
			Amount:            order.TotalAmount,
			Currency:          order.Currency,
			CapturedAt:        s.now().UTC(),
			MethodDetail:      in.methodDetail,
			Source:            in.source,
		}
		inserted, err := paymentRepo.InsertPaymentIgnoreDuplicate(ctx, record)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment record")
		}
		if !inserted {
			stored, err := paymentRepo.FindByProviderPaymentID(ctx, in.providerPaymentID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
			}
			result.Order, result.Record, result.Duplicate = order, stored, true
			return nil
		}

		updated, err := orders.Save(ctx, orderRepo, order, map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"payment_method": enums.PaymentMethodRazorpay,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:    order.ID,
			StatusKey:  enums.TrackingPaymentReceived,
			OccurredAt: record.CapturedAt,
			Actor:      in.actor,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(in.actor.UserID, in.actor.Role),
			Data: payloads.PaymentCapturedEvent{
				OrderID:           order.ID,
				BuyerID:           order.BuyerID,
				FarmerID:          order.FarmerID,
				PaymentRecordID:   record.ID,
				ProviderPaymentID: record.ProviderPaymentID,
				Amount:            record.Amount,
				Currency:          record.Currency,
				Source:            in.source,
			},
		}); err != nil {
			return err
		}

		result.Order, result.Record = updated, record
		if updated.Status == enums.OrderStatusCancelled || updated.Status == enums.OrderStatusRejected {
			refunded, err := s.reconciler.refundTx(ctx, tx, updated, in.actor, enums.RefundReasonLateCapture)
			if err != nil {
				return err
			}
			result.Order, result.Refunded = refunded, true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"order_id":            result.Order.ID.String(),
		"provider_payment_id": in.providerPaymentID,
		"source":              string(in.source),
	}
	switch {
	case result.Duplicate:
		s.logg.Info(s.logg.WithFields(ctx, fields), "payment already captured")
	case result.Refunded:
		s.logg.Warn(s.logg.WithFields(ctx, fields), "late capture refunded")
	default:
		s.logg.Info(s.logg.WithFields(ctx, fields), "payment captured")
	}
	return result, nil
}

func (s *service) ConfirmCOD(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := orders.Load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := checkBuyerOwner(order, actor); err != nil {
			return err
		}
		if order.PaymentMethod == enums.PaymentMethodCOD {
			updated = order
			return nil
		}
		if err := checkPayable(order); err != nil {
			return err
		}
		if order.ProviderOrderID != nil {
			return forbidden(order, "online payment already started")
		}

		updated, err = orders.Save(ctx, repo, order, map[string]any{"payment_method": enums.PaymentMethodCOD})
		if err != nil {
			return err
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:   order.ID,
			StatusKey: enums.TrackingCODSelected,
			Actor:     actor,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCODSelected,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.Role),
			Data: payloads.CODSelectedEvent{
				OrderID:  order.ID,
				BuyerID:  order.BuyerID,
				FarmerID: order.FarmerID,
				Amount:   order.TotalAmount,
				Currency: order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmCODCollected records the cash handed over on delivery.
func (s *service) ConfirmCODCollected(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	providerPaymentID := codPaymentPrefix + orderID.String()

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		paymentRepo := s.payments.WithTx(tx)
		order, err := orders.Load(ctx, orderRepo, orderID)
		if err != nil {
			return err
		}
		switch {
		case actor.Is(enums.ActorRoleSystem):
		case actor.Is(enums.ActorRoleFarmer) && order.FarmerID == actor.UserID:
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the selling farmer can confirm cash collection")
		}
		if order.PaymentMethod != enums.PaymentMethodCOD {
			return forbidden(order, "order is not cash on delivery")
		}
		existing, err := paymentRepo.FindByProviderPaymentID(ctx, providerPaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
		}
		if existing != nil && order.PaymentStatus == enums.PaymentStatusPaid {
			updated = order
			return nil
		}
		if order.PaymentStatus != enums.PaymentStatusUnpaid {
			return forbidden(order, "order is not awaiting payment")
		}
		if !order.Status.IsPayoutEligible() {
			return forbidden(order, "cash can only be collected after delivery")
		}

		record := &models.PaymentRecord{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Provider:          enums.PaymentProviderCOD,
			ProviderPaymentID: providerPaymentID,
			Amount:            order.TotalAmount,
			Currency:          order.Currency,
			CapturedAt:        s.now().UTC(),
			Source:            enums.PaymentSourceCODCollection,
		}
		inserted, err := paymentRepo.InsertPaymentIgnoreDuplicate(ctx, record)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment record")
		}
		if !inserted {
			updated = order
			return nil
		}
		updated, err = orders.Save(ctx, orderRepo, order, map[string]any{"payment_status": enums.PaymentStatusPaid})
		if err != nil {
			return err
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:    order.ID,
			StatusKey:  enums.TrackingCashCollected,
			OccurredAt: record.CapturedAt,
			Actor:      actor,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashCollected,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.Role),
			Data: payloads.CashCollectedEvent{
				OrderID:         order.ID,
				FarmerID:        order.FarmerID,
				PaymentRecordID: record.ID,
				Amount:          record.Amount,
				Currency:        record.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func checkBuyerOwner(order *models.Order, actor auth.Actor) error {
	if !actor.Is(enums.ActorRoleBuyer) || order.BuyerID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering buyer can pay for this order")
	}
	return nil
}

// checkPayable requires an unpaid, open order without a cash on delivery election.
func checkPayable(order *models.Order) error {
	if order.PaymentStatus != enums.PaymentStatusUnpaid {
		return forbidden(order, "order is not awaiting payment")
	}
	if order.Status.IsTerminal() {
		return forbidden(order, "order is closed")
	}
	if order.PaymentMethod == enums.PaymentMethodCOD {
		return forbidden(order, "cash on delivery elected")
	}
	return nil
}

func forbidden(order *models.Order, reason string) error {
	return pkgerrors.New(pkgerrors.CodeForbiddenTransition, "transition not allowed").
		WithDetails(map[string]any{
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"payment_method": order.PaymentMethod,
			"reason":         reason,
		})
}

func outcomeFor(result *CaptureResult, err error) string {
	switch {
	case err == nil && result != nil && result.Duplicate:
		return metrics.OutcomeDuplicate
	case err == nil:
		return metrics.OutcomeVerified
	case pkgerrors.IsCode(err, pkgerrors.CodePaymentVerification):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
