package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storebill/internal/common"
	"storebill/internal/models"
)

// GatewayService wraps the external payment gateway. These are the only
// blocking calls in the engine; every request carries a bounded timeout and
// a timeout is surfaced as common.ErrGatewayTimeout, an unknown outcome the
// caller must resolve with CheckPaymentStatus before committing state.
type GatewayService interface {
	CreateInvoiceLink(ctx context.Context, subscriptionID uuid.UUID, amount decimal.Decimal, currency string) (*PaymentLink, error)
	CheckPaymentStatus(ctx context.Context, externalRef string) (string, error)
	CancelSubscription(ctx context.Context, externalRef string) error
	VerifyWebhook(rawData []byte, signature string) (*models.PaymentEvent, error)
}

// PaymentLink is the gateway's response to an invoice link request.
type PaymentLink struct {
	URL         string `json:"payment_link"`
	ExternalRef string `json:"external_ref"`
}

type gatewayService struct {
	apiKey        string
	apiSecret     string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

// NewGatewayService creates a gateway client with the given request timeout.
func NewGatewayService(apiKey, apiSecret, webhookSecret, baseURL string, timeout time.Duration) GatewayService {
	return &gatewayService{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		http:          &http.Client{Timeout: timeout},
	}
}

type createLinkRequest struct {
	SubscriptionID string `json:"subscription_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

// CreateInvoiceLink asks the gateway to issue a payment link for an invoice.
func (s *gatewayService) CreateInvoiceLink(ctx context.Context, subscriptionID uuid.UUID, amount decimal.Decimal, currency string) (*PaymentLink, error) {
	payload := createLinkRequest{
		SubscriptionID: subscriptionID.String(),
		Amount:         amount.String(),
		Currency:       currency,
	}

	data, err := s.makeRequest(ctx, http.MethodPost, "/invoice-links", payload)
	if err != nil {
		return nil, err
	}

	link := &PaymentLink{}
	if err := json.Unmarshal(data, link); err != nil {
		return nil, fmt.Errorf("%w: malformed invoice link response: %v", common.ErrGateway, err)
	}
	if link.ExternalRef == "" {
		return nil, fmt.Errorf("%w: invoice link response missing external_ref", common.ErrGateway)
	}
	return link, nil
}

type paymentStatusResponse struct {
	Status string `json:"status"`
}

// CheckPaymentStatus polls the gateway for the state of a payment reference.
// It is the reconciliation fallback when webhooks are delayed and the only
// way to resolve an ErrGatewayTimeout outcome.
func (s *gatewayService) CheckPaymentStatus(ctx context.Context, externalRef string) (string, error) {
	data, err := s.makeRequest(ctx, http.MethodGet, "/payments/"+externalRef, nil)
	if err != nil {
		return "", err
	}

	status := paymentStatusResponse{}
	if err := json.Unmarshal(data, &status); err != nil {
		return "", fmt.Errorf("%w: malformed payment status response: %v", common.ErrGateway, err)
	}

	switch status.Status {
	case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusFailed:
		return status.Status, nil
	default:
		return "", fmt.Errorf("%w: unknown payment status %q", common.ErrGateway, status.Status)
	}
}

// CancelSubscription tells the gateway to stop collecting. Best effort; the
// local record is authoritative either way.
func (s *gatewayService) CancelSubscription(ctx context.Context, externalRef string) error {
	_, err := s.makeRequest(ctx, http.MethodPost, "/subscriptions/"+externalRef+"/cancel", nil)
	return err
}

// VerifyWebhook checks the HMAC-SHA256 signature over the raw payload and
// decodes the event. A constant time comparison prevents timing attacks.
func (s *gatewayService) VerifyWebhook(rawData []byte, signature string) (*models.PaymentEvent, error) {
	hash := hmac.New(sha256.New, []byte(s.webhookSecret))
	hash.Write(rawData)
	expected := hex.EncodeToString(hash.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, fmt.Errorf("%w: invalid webhook signature", common.ErrGateway)
	}

	// Amount decodes through a pointer so an absent key is distinguishable
	// from a legitimate zero-amount payment.
	var payload struct {
		EventID     string           `json:"event_id"`
		ExternalRef string           `json:"external_ref"`
		Status      string           `json:"status"`
		Amount      *decimal.Decimal `json:"amount"`
		Currency    string           `json:"currency"`
		OccurredAt  time.Time        `json:"occurred_at"`
	}
	if err := json.Unmarshal(rawData, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook payload: %v", common.ErrGateway, err)
	}
	if payload.EventID == "" || payload.ExternalRef == "" || payload.Status == "" ||
		payload.Amount == nil || payload.Currency == "" || payload.OccurredAt.IsZero() {
		return nil, fmt.Errorf("%w: webhook payload missing required fields", common.ErrGateway)
	}
	return &models.PaymentEvent{
		EventID:     payload.EventID,
		ExternalRef: payload.ExternalRef,
		Status:      payload.Status,
		Amount:      *payload.Amount,
		Currency:    payload.Currency,
		OccurredAt:  payload.OccurredAt,
	}, nil
}

func (s *gatewayService) makeRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.apiKey, s.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %s %s: %v", common.ErrGatewayTimeout, method, path, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", common.ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", common.ErrGateway, method, path, resp.StatusCode, data)
	}
	return data, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
