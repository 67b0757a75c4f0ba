package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func signedBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(secret string) *WebhookHandler {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewWebhookHandler(nil, nil, nil, secret, "razorpay", log)
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	h := newTestHandler("whsec_test")
	body := []byte(`{"event":"payment.captured"}`)

	outcome := h.HandleWebhook(context.Background(), body, "not-the-right-signature")

	assert.False(t, outcome.Retriable)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, "signature mismatch", outcome.Message)
}

func TestHandleWebhook_RejectsMalformedPayload(t *testing.T) {
	secret := "whsec_test"
	h := newTestHandler(secret)
	body := []byte(`not json`)
	sig := signedBody(t, secret, body)

	outcome := h.HandleWebhook(context.Background(), body, sig)

	assert.False(t, outcome.Retriable)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, "malformed payload", outcome.Message)
}

func TestHandleWebhook_IgnoresUnknownEventType(t *testing.T) {
	secret := "whsec_test"
	h := newTestHandler(secret)
	body := []byte(`{"event":"payment.refunded"}`)
	sig := signedBody(t, secret, body)

	outcome := h.HandleWebhook(context.Background(), body, sig)

	assert.False(t, outcome.Retriable)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, "event ignored", outcome.Message)
}

func TestVerifySignature_ConstantTimeComparison(t *testing.T) {
	h := newTestHandler("whsec_test")
	body := []byte(`{"event":"payment.captured"}`)
	good := signedBody(t, "whsec_test", body)

	assert.True(t, h.verifySignature(body, good))
	assert.False(t, h.verifySignature(body, good+"x"))
	assert.False(t, h.verifySignature([]byte(`{"event":"tampered"}`), good))
}
