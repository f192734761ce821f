package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmlink/farmlink-backend/api/routes"
	"github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/internal/payments"
	"github.com/farmlink/farmlink-backend/internal/payouts"
	"github.com/farmlink/farmlink-backend/internal/produce"
	"github.com/farmlink/farmlink-backend/internal/tracking"
	"github.com/farmlink/farmlink-backend/pkg/auth/session"
	"github.com/farmlink/farmlink-backend/pkg/bootstrap"
	"github.com/farmlink/farmlink-backend/pkg/metrics"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/outbox/idempotency"
	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	proc, err := bootstrap.Start("api")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(proc); err != nil {
		proc.Exit("api server stopped unexpectedly", err)
	}
	proc.Close()
}

func run(proc *bootstrap.Process) error {
	handler, err := buildRouter(context.Background(), proc)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = proc.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := proc.SignalContext(map[string]any{"addr": server.Addr})
	defer stop()
	proc.Logger.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	proc.Logger.Info(shutdownCtx, "api server shut down gracefully")
	return nil
}

// buildRouter connects the stores and assembles the domain services behind
// the /api/v1 router.
func buildRouter(ctx context.Context, proc *bootstrap.Process) (http.Handler, error) {
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(redisClient)
	if err != nil {
		return nil, err
	}
	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Payments.WebhookDedupeTTL)
	if err != nil {
		return nil, err
	}
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	gateway, err := razorpay.NewClient(cfg.Razorpay, logg, paymentMetrics)
	if err != nil {
		return nil, fmt.Errorf("razorpay client: %w", err)
	}

	gdb := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(gdb), logg)
	orderRepo := orders.NewRepository(gdb)
	paymentRepo := payments.NewRepository(gdb)
	ledger, err := tracking.NewLedger(tracking.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	catalog, err := produce.NewCatalog(produce.NewRepository(gdb))
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:    orderRepo,
		Tx:      dbClient,
		Outbox:  events,
		Ledger:  ledger,
		Catalog: catalog,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:   orderRepo,
		Payments: paymentRepo,
		Tx:       dbClient,
		Outbox:   events,
		Ledger:   ledger,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment reconciler: %w", err)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Orders:     orderRepo,
		Payments:   paymentRepo,
		Tx:         dbClient,
		Outbox:     events,
		Ledger:     ledger,
		Gateway:    gateway,
		Reconciler: reconciler,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}
	payoutService, err := payouts.NewService(payouts.ServiceParams{
		Orders:  orderRepo,
		Reports: payouts.NewRepository(gdb),
		Tx:      dbClient,
		Outbox:  events,
		Ledger:  ledger,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	return routes.NewRouter(routes.Params{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		Sessions:        sessions,
		Gatherer:        prometheus.DefaultGatherer,
		Orders:          orderService,
		Payments:        paymentService,
		Reconciler:      reconciler,
		Payouts:         payoutService,
		WebhookVerifier: gateway,
		WebhookGuard:    webhookGuard,
	}), nil
}
