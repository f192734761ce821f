package razorpay

import (
	"testing"
	"time"
)

func TestVerifyPaymentSignature(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", time.Second)
	sig := Sign("key_secret", PaymentSignaturePayload("order_1", "pay_1"))

	if !c.VerifyPaymentSignature("order_1", "pay_1", sig) {
		t.Fatal("expected valid signature")
	}
	if !c.VerifyPaymentSignature("order_1", "pay_1", "  "+sig+" ") {
		t.Fatal("expected surrounding whitespace to be ignored")
	}
	if c.VerifyPaymentSignature("order_1", "pay_2", sig) {
		t.Fatal("signature must bind the payment id")
	}
	tampered := []byte(sig)
	tampered[0] ^= 1
	if c.VerifyPaymentSignature("order_1", "pay_1", string(tampered)) {
		t.Fatal("tampered signature accepted")
	}
	if c.VerifyPaymentSignature("order_1", "pay_1", "") {
		t.Fatal("empty signature accepted")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", time.Second)
	body := []byte(`{"event":"payment.captured"}`)

	if !c.VerifyWebhookSignature(body, Sign("hook_secret", body)) {
		t.Fatal("expected valid webhook signature")
	}
	if c.VerifyWebhookSignature(body, Sign("key_secret", body)) {
		t.Fatal("webhook must use the webhook secret")
	}

	c.webhookSecret = ""
	if c.VerifyWebhookSignature(body, Sign("", body)) {
		t.Fatal("missing webhook secret must reject everything")
	}
}

func TestNilClientRejectsSignatures(t *testing.T) {
	var c *Client
	if c.VerifyPaymentSignature("o", "p", "s") || c.VerifyWebhookSignature(nil, "s") {
		t.Fatal("nil client must not verify")
	}
}
