package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/internal/produce"
	"github.com/farmlink/farmlink-backend/internal/tracking"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the order state machine plus its read model.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	ApplyTransition(ctx context.Context, input TransitionInput) (*models.Order, error)
	UpdateTrackingDetails(ctx context.Context, input TrackingDetailsInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*OrderView, error)
}

// ServiceParams groups the collaborators of the order service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Ledger  tracking.Ledger
	Catalog produce.Catalog
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  tracking.Ledger
	catalog produce.Catalog
	logg    *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
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
	if p.Catalog == nil {
		return nil, fmt.Errorf("produce catalog required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		outbox:  p.Outbox,
		ledger:  p.Ledger,
		catalog: p.Catalog,
		logg:    logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	if !input.Actor.Is(enums.ActorRoleBuyer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can place orders")
	}
	if !input.Quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	listing, err := s.catalog.Lookup(ctx, input.ProduceID)
	if err != nil {
		return nil, err
	}
	if listing.FarmerID == input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmers cannot order their own produce")
	}

	unit := listing.Unit
	if !input.Unit.IsZero() {
		if input.Unit.Code != listing.Unit {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit does not match listing").
				WithDetails(map[string]any{"unit": input.Unit.Code, "listing_unit": listing.Unit})
		}
		unit = input.Unit.Code
	}

	address := input.DeliveryAddress
	if address != nil && address.IsZero() {
		address = nil
	}

	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           input.Actor.UserID,
		FarmerID:          listing.FarmerID,
		ProduceID:         listing.ProduceID,
		Quantity:          input.Quantity,
		Unit:              unit,
		UnitPriceSnapshot: listing.UnitPrice,
		TotalAmount:       input.Quantity.Mul(listing.UnitPrice).Round(2),
		Currency:          strings.ToUpper(strings.TrimSpace(listing.Currency)),
		ShippingCost:      decimal.Zero,
		Status:            enums.OrderStatusPending,
		PaymentMethod:     enums.PaymentMethodNone,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		DeliveryAddress:   address,
		Note:              trimmedPtr(input.Note),
		Version:           1,
	}
	if order.Currency == "" {
		order.Currency = "INR"
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:   order.ID,
			StatusKey: enums.TrackingOrderPlaced,
			Location:  address,
			Actor:     input.Actor,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, input.Actor.Role),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				FarmerID:    order.FarmerID,
				ProduceID:   order.ProduceID,
				Quantity:    order.Quantity,
				Unit:        order.Unit,
				TotalAmount: order.TotalAmount,
				Currency:    order.Currency,
				Status:      order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"total_amount": order.TotalAmount.StringFixed(2),
	}), "order created")
	return order, nil
}

func (s *service) ApplyTransition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := Load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := CheckTransition(order, input.Actor, input.Target); err != nil {
			return err
		}

		from := order.Status
		updated, err = Save(ctx, repo, order, map[string]any{"status": input.Target})
		if err != nil {
			return err
		}

		key, err := enums.TrackingKeyForStatus(input.Target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "map tracking key")
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:     order.ID,
			StatusKey:   key,
			Description: trimmedPtr(input.Note),
			Actor:       input.Actor,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, input.Actor.Role),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				FarmerID:      order.FarmerID,
				FromStatus:    from,
				ToStatus:      input.Target,
				PaymentStatus: updated.PaymentStatus,
				Note:          trimmedPtr(input.Note),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID.String(),
		"status":   string(updated.Status),
		"role":     string(input.Actor.Role),
	}), "order status changed")
	return updated, nil
}

func (s *service) UpdateTrackingDetails(ctx context.Context, input TrackingDetailsInput) (*models.Order, error) {
	if err := input.Actor.Validate(); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(input.TrackingNumber)
	carrier := strings.TrimSpace(input.CarrierName)
	if number == "" || carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number and carrier name are required")
	}
	if input.ShippingCost != nil && input.ShippingCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost cannot be negative")
	}

	trackingURL := CarrierTrackingURL(carrier, number)

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := Load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !input.Actor.Is(enums.ActorRoleFarmer) || order.FarmerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the selling farmer can update tracking details")
		}
		if !order.Status.AcceptsTrackingDetails() {
			return pkgerrors.New(pkgerrors.CodeForbiddenTransition, "transition not allowed").
				WithDetails(map[string]any{"status": order.Status, "reason": "tracking details not editable in this status"})
		}

		updates := map[string]any{
			"tracking_number":      number,
			"carrier_name":         carrier,
			"carrier_tracking_url": trackingURL,
		}
		if input.ShippingCost != nil {
			updates["shipping_cost"] = input.ShippingCost.Round(2)
		}
		if input.EstimatedDelivery != nil {
			updates["estimated_delivery"] = input.EstimatedDelivery.UTC()
		}

		updated, err = Save(ctx, repo, order, updates)
		if err != nil {
			return err
		}

		// The ledger keeps the first carrier assignment only. Every edit
		// still reaches the outbox, and through it the analytics table.
		appended, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:        order.ID,
			StatusKey:      enums.TrackingUpdated,
			Location:       input.Location,
			CarrierName:    &carrier,
			TrackingNumber: &number,
			TrackingURL:    &trackingURL,
			Actor:          input.Actor,
		})
		if err != nil {
			return err
		}
		if !appended {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"carrier":  carrier,
			}), "tracking details edited after first assignment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderTrackingUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, input.Actor.Role),
			Data: payloads.OrderTrackingUpdatedEvent{
				OrderID:            order.ID,
				BuyerID:            order.BuyerID,
				TrackingNumber:     number,
				CarrierName:        carrier,
				CarrierTrackingURL: trackingURL,
				EstimatedDelivery:  updated.EstimatedDelivery,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*OrderView, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, err := Load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !CanView(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to actor")
	}

	events, err := s.ledger.List(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &OrderView{
		Order:              order,
		Tracking:           events,
		PaymentStep:        DerivePaymentStep(order, events),
		AllowedTransitions: AllowedTargets(order, actor),
	}, nil
}

// CanView reports whether actor may read order.
func CanView(order *models.Order, actor auth.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.UserID
	case enums.ActorRoleFarmer:
		return order.FarmerID == actor.UserID
	default:
		return false
	}
}

// DerivePaymentStep collapses payment state and ledger into one milestone.
// COD orders show "skipped" once the farmer has accepted them and no
// payment_received entry exists.
func DerivePaymentStep(order *models.Order, events []models.TrackingEvent) PaymentStep {
	switch order.PaymentStatus {
	case enums.PaymentStatusRefunded:
		return PaymentStepRefunded
	case enums.PaymentStatusPaid:
		return PaymentStepCompleted
	}
	if order.PaymentMethod == enums.PaymentMethodCOD &&
		!tracking.HasKey(events, enums.TrackingPaymentReceived) &&
		tracking.HasKey(events, enums.TrackingAccepted) {
		return PaymentStepSkipped
	}
	return PaymentStepPending
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
