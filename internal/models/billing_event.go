package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingEvent is one row of the append-only dedupe ledger. Rows are written
// on first sight of a gateway event and never updated or deleted.
type BillingEvent struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ExternalEventID string          `json:"external_event_id" db:"external_event_id"`
	SubscriptionID  *uuid.UUID      `json:"subscription_id" db:"subscription_id"`
	Type            string          `json:"type" db:"type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	OccurredAt      time.Time       `json:"occurred_at" db:"occurred_at"`
	ProcessedAt     time.Time       `json:"processed_at" db:"processed_at"`
}

// PaymentEvent is the inbound webhook payload from the payment gateway.
type PaymentEvent struct {
	EventID     string          `json:"event_id"`
	ExternalRef string          `json:"external_ref"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Gateway payment event statuses.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)
