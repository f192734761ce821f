package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/farmlink/farmlink-backend/internal/analytics/router"
	"github.com/farmlink/farmlink-backend/internal/analytics/worker"
	"github.com/farmlink/farmlink-backend/internal/analytics/writer"
	"github.com/farmlink/farmlink-backend/pkg/bigquery"
	"github.com/farmlink/farmlink-backend/pkg/bootstrap"
	"github.com/farmlink/farmlink-backend/pkg/outbox/idempotency"
	"github.com/farmlink/farmlink-backend/pkg/pubsub"
)

func main() {
	proc, err := bootstrap.Start("analytics-worker")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(proc); err != nil {
		proc.Exit("analytics worker failed", err)
	}
	proc.Close()
}

func run(proc *bootstrap.Process) error {
	cfg, logg := proc.Config, proc.Logger
	setupCtx := context.Background()

	redisClient, err := proc.Redis(setupCtx)
	if err != nil {
		return err
	}
	pubsubClient, err := pubsub.NewClient(setupCtx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.AnalyticsSubscription)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	proc.OnClose("pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(setupCtx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bootstrap bigquery: %w", err)
	}
	proc.OnClose("bigquery", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}
	dedupe, err := idempotency.NewManager(redisClient, cfg.Payments.ConsumerDedupeTTL)
	if err != nil {
		return err
	}

	rows, err := writer.New(bqClient, writer.Config{OrderEventsTable: cfg.BigQuery.OrderEventsTable})
	if err != nil {
		return err
	}
	// registered after bigquery so buffered rows flush before the client closes
	proc.OnClose("analytics rows", func() error { return rows.Flush(context.Background()) })

	handler, err := router.NewRouter(rows, logg)
	if err != nil {
		return err
	}
	service, err := worker.NewService(subscription, handler, dedupe, logg)
	if err != nil {
		return err
	}

	ctx, stop := proc.SignalContext(map[string]any{
		"subscription": cfg.PubSub.AnalyticsSubscription,
		"table":        cfg.BigQuery.OrderEventsTable,
	})
	defer stop()
	logg.Info(ctx, "analytics worker ready")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "analytics worker shutting down gracefully")
	return nil
}
