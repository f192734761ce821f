package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink-backend/internal/orders"
	"github.com/farmlink/farmlink-backend/internal/payments"
	"github.com/farmlink/farmlink-backend/internal/payouts"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/auth/session"
	"github.com/farmlink/farmlink-backend/pkg/config"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/pagination"
	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	mu      sync.Mutex
	values  map[string]string
	allowed bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, allowed: true}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = "1"
	}
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	str, _ := value.(string)
	m.values[key] = str
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return m.allowed, 1, nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type allowAllSessions struct{}

func (allowAllSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubOrders struct{ creates int }

func (s *stubOrders) Create(_ context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	s.creates++
	return &models.Order{ID: uuid.New(), BuyerID: input.Actor.UserID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrders) ApplyTransition(_ context.Context, input orders.TransitionInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.Target}, nil
}

func (s *stubOrders) UpdateTrackingDetails(_ context.Context, input orders.TrackingDetailsInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID}, nil
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID, _ auth.Actor) (*orders.OrderView, error) {
	return &orders.OrderView{Order: &models.Order{ID: id}, PaymentStep: orders.PaymentStepPending}, nil
}

type stubPayments struct{ verifies int }

func (s *stubPayments) CreatePaymentIntent(_ context.Context, orderID uuid.UUID, _ auth.Actor) (*payments.PaymentIntent, error) {
	return &payments.PaymentIntent{OrderID: orderID}, nil
}

func (s *stubPayments) VerifyPayment(_ context.Context, input payments.VerifyInput) (*payments.CaptureResult, error) {
	s.verifies++
	return &payments.CaptureResult{Order: &models.Order{ID: input.OrderID}}, nil
}

func (s *stubPayments) CaptureFromWebhook(context.Context, razorpay.Payment) (*payments.CaptureResult, error) {
	return &payments.CaptureResult{}, nil
}

func (s *stubPayments) ConfirmCOD(_ context.Context, orderID uuid.UUID, _ auth.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *stubPayments) ConfirmCODCollected(_ context.Context, orderID uuid.UUID, _ auth.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

type stubRefunder struct{}

func (stubRefunder) CancelWithRefund(_ context.Context, orderID uuid.UUID, _ auth.Actor, _ enums.RefundReason) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

type stubPayouts struct{}

func (stubPayouts) MarkFarmerPaid(_ context.Context, orderID uuid.UUID, _ auth.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID, FarmerPaidOut: true}, nil
}

func (stubPayouts) Summary(context.Context, *uuid.UUID, auth.Actor) (*payouts.Summary, error) {
	return &payouts.Summary{}, nil
}

func (stubPayouts) ListPending(context.Context, payouts.ListParams, auth.Actor) (*pagination.Page[payouts.PendingPayout], error) {
	return &pagination.Page[payouts.PendingPayout]{}, nil
}

type rejectingVerifier struct{}

func (rejectingVerifier) VerifyWebhookSignature([]byte, string) bool { return false }

type nopGuard struct{}

func (nopGuard) CheckAndMark(context.Context, string, string) (bool, error) { return false, nil }
func (nopGuard) Release(context.Context, string, string) error              { return nil }

type testEnv struct {
	handler  http.Handler
	cfg      *config.Config
	redis    *memoryRedis
	orders   *stubOrders
	payments *stubPayments
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "farmlink-test", ExpirationMinutes: 5, RequireSession: true},
		Payments: config.PaymentsConfig{
			VerifyRateLimit:  5,
			VerifyRateWindow: time.Minute,
		},
	}
	env := &testEnv{cfg: cfg, redis: newMemoryRedis(), orders: &stubOrders{}, payments: &stubPayments{}}
	env.handler = NewRouter(Params{
		Config:          cfg,
		Logger:          logger.Nop(),
		DB:              stubPinger{},
		Redis:           env.redis,
		Sessions:        allowAllSessions{},
		Gatherer:        prometheus.NewRegistry(),
		Orders:          env.orders,
		Payments:        env.payments,
		Reconciler:      stubRefunder{},
		Payouts:         stubPayouts{},
		WebhookVerifier: rejectingVerifier{},
		WebhookGuard:    nopGuard{},
	})
	return env
}

func (e *testEnv) token(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(e.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path, token, idemKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", "", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", "", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/metrics", "", "", "").Code)
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderRoleAndIdempotency(t *testing.T) {
	env := newTestEnv(t)
	body := `{"produceId":"` + uuid.NewString() + `","quantity":"2","unit":"kg"}`

	rec := env.do(http.MethodPost, "/api/v1/orders", env.token(t, enums.ActorRoleFarmer), "k1", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	buyer := env.token(t, enums.ActorRoleBuyer)
	rec = env.do(http.MethodPost, "/api/v1/orders", buyer, "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	first := env.do(http.MethodPost, "/api/v1/orders", buyer, "k2", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	replay := env.do(http.MethodPost, "/api/v1/orders", buyer, "k2", body)
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, 1, env.orders.creates)
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), env.token(t, enums.ActorRoleBuyer), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paymentStep":"pending"`)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/admin/payouts/summary", env.token(t, enums.ActorRoleFarmer), "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/admin/payouts/summary", env.token(t, enums.ActorRoleAdmin), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.redis.allowed = false
	body := `{"orderId":"` + uuid.NewString() + `","razorpayOrderId":"order_1","razorpayPaymentId":"pay_1","razorpaySignature":"sig"}`

	rec := env.do(http.MethodPost, "/api/v1/payments/verify", env.token(t, enums.ActorRoleBuyer), "v1", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, env.payments.verifies)
}

func TestCODCollectedIsFarmerOnly(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/payments/cod/" + uuid.NewString() + "/collected"

	rec := env.do(http.MethodPost, path, env.token(t, enums.ActorRoleBuyer), "c1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, path, env.token(t, enums.ActorRoleFarmer), "c2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookSkipsBearerAuth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{}`))
	req.Header.Set(razorpay.HeaderSignature, "bogus")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "signature")
}
