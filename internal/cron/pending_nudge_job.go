package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/metrics"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/payloads"
)

const (
	pendingNudgeJobName     = "pending-order-nudge"
	defaultPendingNudgeAge  = 48 * time.Hour
	defaultPendingNudgeScan = 500
)

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type nudgeEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PendingNudgeJobParams configure the reminder for undecided orders.
type PendingNudgeJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    pendingOrderReader
	Outbox    nudgeEmitter
	Metrics   *metrics.CronJobMetrics
	After     time.Duration
	BatchSize int
}

// NewPendingNudgeJob builds the job that reminds farmers about orders left in
// pending. It only emits notifications and never changes order state.
func NewPendingNudgeJob(params PendingNudgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultPendingNudgeAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPendingNudgeScan
	}
	return &pendingNudgeJob{
		logg:    params.Logger,
		db:      params.DB,
		orders:  params.Orders,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		after:   after,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type pendingNudgeJob struct {
	logg    *logger.Logger
	db      txRunner
	orders  pendingOrderReader
	outbox  nudgeEmitter
	metrics *metrics.CronJobMetrics
	after   time.Duration
	batch   int
	now     func() time.Time
}

func (j *pendingNudgeJob) Name() string { return pendingNudgeJobName }

func (j *pendingNudgeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.after)
	pending, err := j.orders.FindPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query pending orders for nudge: %w", err)
	}

	var errs error
	var nudged int64
	for _, order := range pending {
		if err := j.nudge(ctx, order, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("nudge order %s: %w", order.ID, err))
			continue
		}
		nudged++
	}
	j.metrics.AddAffected(j.Name(), nudged)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(pending),
		"nudged":  nudged,
	}), "pending order nudge complete")
	return errs
}

func (j *pendingNudgeJob) nudge(ctx context.Context, order models.Order, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPendingNudge,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(uuid.Nil, enums.ActorRoleSystem),
			OccurredAt:    now,
			Data: payloads.OrderPendingNudgeEvent{
				OrderID:      order.ID,
				FarmerID:     order.FarmerID,
				BuyerID:      order.BuyerID,
				PendingSince: order.CreatedAt.UTC(),
			},
		})
	})
}
