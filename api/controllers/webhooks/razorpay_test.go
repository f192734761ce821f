package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/farmlink/farmlink-backend/internal/payments"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/razorpay"
)

const testWebhookSecret = "whsec_farmlink"

const capturedBody = `{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":25000,"currency":"INR","status":"captured","order_id":"order_1","method":"upi","vpa":"buyer@okbank"}}}}`

type fakeCaptureService struct {
	calls    int
	payments []razorpay.Payment
	result   *payments.CaptureResult
	err      error
}

func (f *fakeCaptureService) CaptureFromWebhook(_ context.Context, payment razorpay.Payment) (*payments.CaptureResult, error) {
	f.calls++
	f.payments = append(f.payments, payment)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &payments.CaptureResult{}, nil
}

type hmacVerifier struct{ secret string }

func (v hmacVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	return razorpay.Sign(v.secret, body) == signature
}

type memoryGuard struct {
	keys     map[string]bool
	released int
	err      error
}

func newMemoryGuard() *memoryGuard { return &memoryGuard{keys: map[string]bool{}} }

func (g *memoryGuard) CheckAndMark(_ context.Context, scope, id string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	key := scope + ":" + id
	if g.keys[key] {
		return true, nil
	}
	g.keys[key] = true
	return false, nil
}

func (g *memoryGuard) Release(_ context.Context, scope, id string) error {
	g.released++
	delete(g.keys, scope+":"+id)
	return nil
}

func signedRequest(body, eventID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", bytes.NewReader([]byte(body)))
	req.Header.Set(razorpay.HeaderSignature, razorpay.Sign(testWebhookSecret, []byte(body)))
	if eventID != "" {
		req.Header.Set(razorpay.HeaderEventID, eventID)
	}
	return req
}

func TestRazorpayWebhook_CaptureAndReplay(t *testing.T) {
	svc := &fakeCaptureService{}
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, newMemoryGuard(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one capture, got %d", svc.calls)
	}
	if svc.payments[0].ID != "pay_1" || svc.payments[0].OrderID != "order_1" {
		t.Fatalf("unexpected payment %+v", svc.payments[0])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("replay should not capture again, calls=%d", svc.calls)
	}
}

func TestRazorpayWebhook_InvalidSignature(t *testing.T) {
	svc := &fakeCaptureService{}
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, newMemoryGuard(), nil)

	req := signedRequest(capturedBody, "evt_1")
	req.Header.Set(razorpay.HeaderSignature, razorpay.Sign("other", []byte(capturedBody)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not run on invalid signature")
	}
}

func TestRazorpayWebhook_MissingSignature(t *testing.T) {
	handler := RazorpayWebhook(&fakeCaptureService{}, hmacVerifier{secret: testWebhookSecret}, newMemoryGuard(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", bytes.NewReader([]byte(capturedBody)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRazorpayWebhook_IgnoresOtherEvents(t *testing.T) {
	svc := &fakeCaptureService{}
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, newMemoryGuard(), nil)

	body := `{"entity":"event","event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2"}}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body, "evt_2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("non-capture events must not capture")
	}
}

func TestRazorpayWebhook_FailureReleasesGuard(t *testing.T) {
	svc := &fakeCaptureService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "capture")}
	guard := newMemoryGuard()
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, guard, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_3"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if guard.released != 1 {
		t.Fatalf("expected guard release, got %d", guard.released)
	}

	svc.err = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_3"))
	if rec.Code != http.StatusOK || svc.calls != 2 {
		t.Fatalf("expected redelivery to capture, code=%d calls=%d", rec.Code, svc.calls)
	}
}

func TestRazorpayWebhook_UnknownOrderAcknowledged(t *testing.T) {
	svc := &fakeCaptureService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	guard := newMemoryGuard()
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, guard, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if guard.released != 0 {
		t.Fatalf("unknown orders keep their dedupe claim")
	}
	if !guard.keys[razorpayDedupeScope+":payment.captured:pay_1"] {
		t.Fatalf("expected fallback delivery id to be claimed")
	}
}

func TestRazorpayWebhook_GuardFailure(t *testing.T) {
	guard := newMemoryGuard()
	guard.err = errors.New("redis down")
	handler := RazorpayWebhook(&fakeCaptureService{}, hmacVerifier{secret: testWebhookSecret}, guard, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_4"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRazorpayWebhook_SurplusCaptureAcknowledged(t *testing.T) {
	svc := &fakeCaptureService{result: &payments.CaptureResult{Refunded: true, Surplus: true}}
	guard := newMemoryGuard()
	handler := RazorpayWebhook(svc, hmacVerifier{secret: testWebhookSecret}, guard, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_extra"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if guard.released != 0 {
		t.Fatalf("refunded extra capture must keep its dedup key, released=%d", guard.released)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_extra"))
	if rec.Code != http.StatusOK || svc.calls != 1 {
		t.Fatalf("redelivery should be acked without capturing again, code=%d calls=%d", rec.Code, svc.calls)
	}
}
