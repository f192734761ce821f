package payouts

import (
	"context"
	"fmt"
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
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
	"github.com/farmlink/farmlink-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records admin acknowledgement of farmer payouts. Money movement
// happens outside this system.
type Service interface {
	MarkFarmerPaid(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	Summary(ctx context.Context, farmerID *uuid.UUID, actor auth.Actor) (*Summary, error)
	ListPending(ctx context.Context, params ListParams, actor auth.Actor) (*pagination.Page[PendingPayout], error)
}

type ServiceParams struct {
	Orders  orders.Repository
	Reports Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Ledger  tracking.Ledger
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	orders  orders.Repository
	reports Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  tracking.Ledger
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Orders == nil || p.Reports == nil {
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
	return &service{
		orders:  p.Orders,
		reports: p.Reports,
		tx:      p.Tx,
		outbox:  p.Outbox,
		ledger:  p.Ledger,
		logg:    logg,
		now:     clock,
	}, nil
}

func requireAdmin(actor auth.Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.Is(enums.ActorRoleAdmin) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return nil
}

// MarkFarmerPaid fails loudly on a repeat call so double acknowledgement is visible.
func (s *service) MarkFarmerPaid(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := orders.Load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.FarmerPaidOut {
			details := map[string]any{"order_id": order.ID}
			if order.FarmerPaidOutAt != nil {
				details["paid_out_at"] = order.FarmerPaidOutAt.UTC()
			}
			return pkgerrors.New(pkgerrors.CodeAlreadyPaidOut, "farmer already paid out for this order").WithDetails(details)
		}
		if order.PaymentStatus != enums.PaymentStatusPaid || !order.Status.IsPayoutEligible() {
			return pkgerrors.New(pkgerrors.CodeForbiddenTransition, "transition not allowed").
				WithDetails(map[string]any{
					"status":         order.Status,
					"payment_status": order.PaymentStatus,
					"reason":         "payout requires a paid and delivered order",
				})
		}

		paidAt := s.now().UTC()
		updated, err = orders.Save(ctx, repo, order, map[string]any{
			"farmer_paid_out":    true,
			"farmer_paid_out_at": paidAt,
			"farmer_paid_out_by": actor.UserID,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledger.Append(ctx, tx, tracking.Entry{
			OrderID:    order.ID,
			StatusKey:  enums.TrackingPayoutRecorded,
			OccurredAt: paidAt,
			Actor:      actor,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFarmerPayoutRecorded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.Role),
			Data: payloads.FarmerPayoutRecordedEvent{
				OrderID:   order.ID,
				FarmerID:  order.FarmerID,
				Amount:    order.TotalAmount,
				Currency:  order.Currency,
				PaidOutAt: paidAt,
				PaidOutBy: actor.UserID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":  updated.ID.String(),
		"farmer_id": updated.FarmerID.String(),
		"admin_id":  actor.UserID.String(),
	}), "farmer payout recorded")
	return updated, nil
}

func (s *service) Summary(ctx context.Context, farmerID *uuid.UUID, actor auth.Actor) (*Summary, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	summary, err := s.reports.Summary(ctx, farmerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize payouts")
	}
	return summary, nil
}

func (s *service) ListPending(ctx context.Context, params ListParams, actor auth.Actor) (*pagination.Page[PendingPayout], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.reports.ListPending(ctx, params.FarmerID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payouts")
	}
	items := make([]PendingPayout, 0, len(rows))
	for _, row := range rows {
		items = append(items, pendingFromOrder(row))
	}
	page := pagination.Build(items, params.Limit, func(p PendingPayout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.OrderID}
	})
	return &page, nil
}
