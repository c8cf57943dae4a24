package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	SubscriptionID     uuid.UUID       `json:"subscription_id" db:"subscription_id"`
	PeriodStart        time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd          time.Time       `json:"period_end" db:"period_end"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Currency           string          `json:"currency" db:"currency"`
	Status             InvoiceStatus   `json:"status" db:"status"`
	DueDate            *time.Time      `json:"due_date" db:"due_date"`
	SentAt             *time.Time      `json:"sent_at" db:"sent_at"`
	PaidAt             *time.Time      `json:"paid_at" db:"paid_at"`
	ExternalPaymentRef *string         `json:"external_payment_ref" db:"external_payment_ref"`
	PaymentLink        *string         `json:"payment_link" db:"payment_link"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// Open reports whether the invoice still awaits payment or cancellation.
// An open invoice blocks drafting the next one for its subscription.
func (i *Invoice) Open() bool {
	switch i.Status {
	case InvoiceDraft, InvoiceSent, InvoiceOverdue:
		return true
	}
	return false
}
