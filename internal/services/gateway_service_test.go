package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebill/internal/common"
	"storebill/internal/models"
)

const testWebhookSecret = "whsec_test"

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	svc := NewGatewayService("key", "secret", testWebhookSecret, "http://gateway.test", 15*time.Second)

	payload := []byte(`{"event_id":"e1","external_ref":"pay_abc","status":"paid","amount":"59.97","currency":"USD","occurred_at":"2025-02-03T09:30:00Z"}`)

	event, err := svc.VerifyWebhook(payload, signPayload(t, payload))

	require.NoError(t, err)
	assert.Equal(t, "e1", event.EventID)
	assert.Equal(t, "pay_abc", event.ExternalRef)
	assert.Equal(t, models.PaymentStatusPaid, event.Status)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("59.97")))
	assert.Equal(t, "USD", event.Currency)
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	svc := NewGatewayService("key", "secret", testWebhookSecret, "http://gateway.test", 15*time.Second)

	payload := []byte(`{"event_id":"e1","external_ref":"pay_abc","status":"paid","amount":"59.97","currency":"USD","occurred_at":"2025-02-03T09:30:00Z"}`)

	_, err := svc.VerifyWebhook(payload, "deadbeef")

	assert.ErrorIs(t, err, common.ErrGateway)
}

func TestVerifyWebhookMissingFields(t *testing.T) {
	svc := NewGatewayService("key", "secret", testWebhookSecret, "http://gateway.test", 15*time.Second)

	payload := []byte(`{"event_id":"e1","status":"paid"}`)

	_, err := svc.VerifyWebhook(payload, signPayload(t, payload))

	assert.ErrorIs(t, err, common.ErrGateway)
}

func TestVerifyWebhookMissingAmount(t *testing.T) {
	svc := NewGatewayService("key", "secret", testWebhookSecret, "http://gateway.test", 15*time.Second)

	// No amount key at all; must be rejected, not parsed as zero.
	payload := []byte(`{"event_id":"e1","external_ref":"pay_abc","status":"paid","currency":"USD","occurred_at":"2025-02-03T09:30:00Z"}`)

	_, err := svc.VerifyWebhook(payload, signPayload(t, payload))

	assert.ErrorIs(t, err, common.ErrGateway)
}

func TestVerifyWebhookExplicitZeroAmount(t *testing.T) {
	svc := NewGatewayService("key", "secret", testWebhookSecret, "http://gateway.test", 15*time.Second)

	payload := []byte(`{"event_id":"e1","external_ref":"pay_abc","status":"paid","amount":"0","currency":"USD","occurred_at":"2025-02-03T09:30:00Z"}`)

	event, err := svc.VerifyWebhook(payload, signPayload(t, payload))

	require.NoError(t, err)
	assert.True(t, event.Amount.IsZero())
}

func TestCreateInvoiceLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoice-links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"payment_link":"https://pay.example.com/abc","external_ref":"pay_abc"}`))
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", testWebhookSecret, server.URL, 15*time.Second)

	link, err := svc.CreateInvoiceLink(context.Background(), uuid.New(), decimal.RequireFromString("59.97"), "USD")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/abc", link.URL)
	assert.Equal(t, "pay_abc", link.ExternalRef)
}

func TestCreateInvoiceLinkTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", testWebhookSecret, server.URL, 50*time.Millisecond)

	_, err := svc.CreateInvoiceLink(context.Background(), uuid.New(), decimal.RequireFromString("59.97"), "USD")

	assert.ErrorIs(t, err, common.ErrGatewayTimeout)
}

func TestCheckPaymentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_abc", r.URL.Path)
		w.Write([]byte(`{"status":"paid"}`))
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", testWebhookSecret, server.URL, 15*time.Second)

	status, err := svc.CheckPaymentStatus(context.Background(), "pay_abc")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, status)
}

func TestCheckPaymentStatusUnknownValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"weird"}`))
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", testWebhookSecret, server.URL, 15*time.Second)

	_, err := svc.CheckPaymentStatus(context.Background(), "pay_abc")

	assert.ErrorIs(t, err, common.ErrGateway)
}

func TestGatewayErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewGatewayService("key", "secret", testWebhookSecret, server.URL, 15*time.Second)

	err := svc.CancelSubscription(context.Background(), "sub_abc")

	assert.ErrorIs(t, err, common.ErrGateway)
}
