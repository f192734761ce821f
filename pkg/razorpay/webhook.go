package razorpay

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventPaymentCaptured = "payment.captured"

	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// WebhookEvent is the subset of the webhook envelope the capture path reads.
type WebhookEvent struct {
	Entity    string          `json:"entity"`
	AccountID string          `json:"account_id"`
	Event     string          `json:"event"`
	Contains  []string        `json:"contains"`
	Payload   WebhookPayload  `json:"payload"`
	CreatedAt int64           `json:"created_at"`
	Raw       json.RawMessage `json:"-"`
}

type WebhookPayload struct {
	Payment *struct {
		Entity Payment `json:"entity"`
	} `json:"payment,omitempty"`
}

// Payment mirrors the provider payment entity.
type Payment struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	OrderID  string            `json:"order_id"`
	Method   string            `json:"method"`
	VPA      string            `json:"vpa,omitempty"`
	Bank     string            `json:"bank,omitempty"`
	Wallet   string            `json:"wallet,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}
	evt.Raw = append(json.RawMessage(nil), body...)
	return &evt, nil
}

// CapturedPayment returns the payment entity for payment.captured events.
func (e *WebhookEvent) CapturedPayment() (*Payment, bool) {
	if e == nil || e.Event != EventPaymentCaptured || e.Payload.Payment == nil {
		return nil, false
	}
	p := e.Payload.Payment.Entity
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.OrderID) == "" {
		return nil, false
	}
	return &p, true
}

// MethodDetail summarises how the buyer paid, e.g. "upi:farmer@okbank".
func (p Payment) MethodDetail() string {
	method := strings.TrimSpace(p.Method)
	var detail string
	switch {
	case p.VPA != "":
		detail = p.VPA
	case p.Bank != "":
		detail = p.Bank
	case p.Wallet != "":
		detail = p.Wallet
	}
	if method == "" {
		return detail
	}
	if detail == "" {
		return method
	}
	return method + ":" + detail
}
