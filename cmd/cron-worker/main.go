package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmlink/farmlink-backend/internal/cron"
	"github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/pkg/bootstrap"
	"github.com/farmlink/farmlink-backend/pkg/metrics"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
)

func main() {
	proc, err := bootstrap.Start("cron-worker")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(proc); err != nil {
		proc.Exit("cron worker stopped unexpectedly", err)
	}
	proc.Close()
}

func run(proc *bootstrap.Process) error {
	cfg, logg := proc.Config, proc.Logger
	setupCtx := context.Background()

	dbClient, err := proc.Database(setupCtx)
	if err != nil {
		return err
	}
	redisClient, err := proc.Redis(setupCtx)
	if err != nil {
		return err
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())

	nudge, err := cron.NewPendingNudgeJob(cron.PendingNudgeJobParams{
		Logger:  logg,
		DB:      dbClient,
		Orders:  orders.NewRepository(dbClient.DB()),
		Outbox:  outbox.NewService(outboxRepo, logg),
		Metrics: jobMetrics,
		After:   cfg.Cron.PendingNudgeAfter,
	})
	if err != nil {
		return fmt.Errorf("pending nudge job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Metrics:    jobMetrics,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	jobs, err := cron.NewRegistry(nudge, retention)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx, stop := proc.SignalContext(map[string]any{
		"interval": cfg.Cron.Interval.String(),
		"jobs":     jobs.Names(),
	})
	defer stop()
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}
