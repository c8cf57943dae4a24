package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Interval is the billing interval of a subscription.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Cancellation reasons recorded on terminal subscriptions.
const (
	CancelReasonRequested    = "requested"
	CancelReasonTermComplete = "term_complete"
	CancelReasonOverdue      = "overdue"
)

type Subscription struct {
	ID                     uuid.UUID          `json:"id" db:"id"`
	CustomerID             uuid.UUID          `json:"customer_id" db:"customer_id"`
	ProductID              uuid.UUID          `json:"product_id" db:"product_id"`
	Quantity               int                `json:"quantity" db:"quantity"`
	UnitPrice              decimal.Decimal    `json:"unit_price" db:"unit_price"`
	Currency               string             `json:"currency" db:"currency"`
	Interval               Interval           `json:"interval" db:"interval"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	StartDate              time.Time          `json:"start_date" db:"start_date"`
	TrialEnd               *time.Time         `json:"trial_end" db:"trial_end"`
	CurrentPeriodStart     time.Time          `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end" db:"current_period_end"`
	NextBillingDate        *time.Time         `json:"next_billing_date" db:"next_billing_date"`
	EndDate                *time.Time         `json:"end_date" db:"end_date"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	AutoCharge             bool               `json:"auto_charge" db:"auto_charge"`
	ExternalSubscriptionID *string            `json:"external_subscription_id" db:"external_subscription_id"`
	CancelReason           *string            `json:"cancel_reason" db:"cancel_reason"`
	Metadata               map[string]string  `json:"metadata" db:"metadata"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the subscription can no longer transition.
func (s *Subscription) Terminal() bool {
	return s.Status == SubscriptionCanceled
}

// InTrial reports whether the subscription is still inside its trial window at t.
func (s *Subscription) InTrial(t time.Time) bool {
	return s.TrialEnd != nil && t.Before(*s.TrialEnd)
}
