package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmlink/farmlink-backend/api/controllers"
	admincontrollers "github.com/farmlink/farmlink-backend/api/controllers/admin"
	ordercontrollers "github.com/farmlink/farmlink-backend/api/controllers/orders"
	paymentcontrollers "github.com/farmlink/farmlink-backend/api/controllers/payments"
	webhookcontrollers "github.com/farmlink/farmlink-backend/api/controllers/webhooks"
	"github.com/farmlink/farmlink-backend/api/middleware"
	"github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/internal/payments"
	"github.com/farmlink/farmlink-backend/internal/payouts"
	"github.com/farmlink/farmlink-backend/pkg/auth/session"
	"github.com/farmlink/farmlink-backend/pkg/config"
	"github.com/farmlink/farmlink-backend/pkg/db"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/logger"
)

// RedisStore is the slice of the redis client the HTTP layer uses.
type RedisStore interface {
	middleware.ResponseStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

type webhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Params collects everything the router mounts.
type Params struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           RedisStore
	Sessions        session.AccessSessionChecker
	Gatherer        prometheus.Gatherer
	Orders          orders.Service
	Payments        payments.Service
	Reconciler      ordercontrollers.Refunder
	Payouts         payouts.Service
	WebhookVerifier webhookVerifier
	WebhookGuard    webhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.NamedPinger{Name: "db", Pinger: p.DB},
			controllers.NamedPinger{Name: "redis", Pinger: p.Redis},
		))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(p.Payments, p.WebhookVerifier, p.WebhookGuard, logg))
	})

	var sessions session.AccessSessionChecker
	if cfg.JWT.RequireSession {
		sessions = p.Sessions
	}
	verifyPolicy := middleware.NewRateLimitPolicy("payments-verify", cfg.Payments.VerifyRateLimit, cfg.Payments.VerifyRateWindow)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Get(p.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleFarmer, enums.ActorRoleAdmin)).
				Patch("/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, p.Reconciler, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).
				Patch("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, p.Reconciler, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleFarmer)).
				Patch("/{orderId}/tracking-details", ordercontrollers.TrackingDetails(p.Orders, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
				r.Post("/create-order", paymentcontrollers.CreateOrder(p.Payments, logg))
				r.With(middleware.RateLimit(verifyPolicy, p.Redis, logg)).Post("/verify", paymentcontrollers.Verify(p.Payments, logg))
				r.Post("/cod", paymentcontrollers.ConfirmCOD(p.Payments, logg))
			})
			r.With(middleware.RequireRole(logg, enums.ActorRoleFarmer)).
				Post("/cod/{orderId}/collected", paymentcontrollers.CODCollected(p.Payments, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Patch("/payments/{orderId}/farmer-paid", admincontrollers.FarmerPaid(p.Payouts, logg))
			r.Get("/payouts/summary", admincontrollers.PayoutSummary(p.Payouts, logg))
			r.Get("/payouts/pending", admincontrollers.PayoutsPending(p.Payouts, logg))
		})
	})

	return r
}
