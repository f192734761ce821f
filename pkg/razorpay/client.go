package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/config"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/metrics"
)

const (
	defaultBaseURL  = "https://api.razorpay.com"
	defaultTimeout  = 10 * time.Second
	ordersPath      = "/v1/orders"
	maxErrorBodyLen = 2048
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errLoggerRequired    = errors.New("razorpay logger is required")
)

// Client talks to the provider's REST API and owns the signing secrets.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
	logger        *logger.Logger
	metrics       *metrics.PaymentMetrics
}

// CreateOrderRequest describes a provider order. Amount is in minor units (paise).
type CreateOrderRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// Order is the provider-side payment intent.
type Order struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type apiErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewClient validates credentials and builds a client with a bounded timeout.
func NewClient(cfg config.RazorpayConfig, logg *logger.Logger, m *metrics.PaymentMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "INR"
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      currency,
		logger:        logg,
		metrics:       m,
	}, nil
}

// KeyID is the public key handed to checkout clients.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Currency returns the default settlement currency.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrder registers a payment intent with the provider.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (order *Order, err error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		req.Currency = c.currency
	}

	started := time.Now()
	defer func() { c.metrics.ObserveGateway("create_order", started, err) }()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode razorpay order")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build razorpay request")
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	c.log(ctx, "request", "create_order", map[string]any{
		"receipt":  req.Receipt,
		"amount":   req.AmountMinor,
		"currency": req.Currency,
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logError(ctx, "create_order", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "razorpay create order failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read razorpay response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := mapStatusError(resp.StatusCode, raw)
		c.logError(ctx, "create_order", apiErr)
		return nil, apiErr
	}

	var out Order
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay order")
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "razorpay returned an order without id")
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"provider_order_id": out.ID,
		"status":            out.Status,
	})
	return &out, nil
}

// mapStatusError keeps every provider failure retryable from the caller's
// point of view; the provider's code travels in details.
func mapStatusError(status int, raw []byte) error {
	details := map[string]any{"status": status}
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		details["provider_code"] = body.Error.Code
		details["provider_description"] = body.Error.Description
	} else if len(raw) > 0 {
		if len(raw) > maxErrorBodyLen {
			raw = raw[:maxErrorBodyLen]
		}
		details["body"] = string(raw)
	}
	cause := fmt.Errorf("razorpay responded %d", status)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "razorpay create order failed").WithDetails(details)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	c.logger.Info(c.logger.WithFields(ctx, logFields), fmt.Sprintf("razorpay %s", phase))
}

func (c *Client) logError(ctx context.Context, op string, err error) {
	if c == nil || c.logger == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, map[string]any{"operation": op, "phase": "error"})
	c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), err)
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "signature", "vpa", "email", "contact"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

// ToMinor converts a decimal amount into integer minor units.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinor converts provider minor units back into a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
