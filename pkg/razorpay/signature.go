package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentSignaturePayload is the message checkout signs: "order_id|payment_id".
func PaymentSignaturePayload(providerOrderID, providerPaymentID string) []byte {
	return []byte(providerOrderID + "|" + providerPaymentID)
}

// VerifyPaymentSignature checks a checkout callback signature against the key secret.
func (c *Client) VerifyPaymentSignature(providerOrderID, providerPaymentID, signature string) bool {
	if c == nil {
		return false
	}
	return verify(c.keySecret, PaymentSignaturePayload(providerOrderID, providerPaymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature over the raw request body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil {
		return false
	}
	return verify(c.webhookSecret, body, signature)
}

func verify(secret string, payload []byte, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
