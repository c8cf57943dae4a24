package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"storebill/internal/billing"
	"storebill/internal/common"
	"storebill/internal/models"
	"storebill/internal/repositories"
)

// InvoiceService owns the invoice state machine:
//
//	draft -> sent -> {paid | overdue}; overdue -> paid; any non-terminal -> cancelled
//
// Transitions that are not listed fail with common.ErrStateConflict and leave
// the invoice untouched. The one-open-invoice invariant is enforced at Draft.
type InvoiceService interface {
	Draft(ctx context.Context, subscription *models.Subscription, period billing.Period) (*models.Invoice, error)
	Send(ctx context.Context, invoice *models.Invoice) error
	MarkPaid(ctx context.Context, invoice *models.Invoice, paidAt time.Time) error
	MarkOverdue(ctx context.Context, invoice *models.Invoice) error
	CancelOpen(ctx context.Context, subscriptionID uuid.UUID) error
	GetOpen(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error)
	GetLatest(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*models.Invoice, error)
}

type invoiceService struct {
	invoiceRepo repositories.InvoiceRepository
	gatewaySvc  GatewayService
	dueDays     int
}

// NewInvoiceService creates an invoice service. dueDays is how long after
// delivery an invoice may stay unpaid before the overdue sweep picks it up.
func NewInvoiceService(invoiceRepo repositories.InvoiceRepository, gatewaySvc GatewayService, dueDays int) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		gatewaySvc:  gatewaySvc,
		dueDays:     dueDays,
	}
}

// Draft creates the invoice billing one period of a subscription. Fails with
// ErrStateConflict while another invoice is still open for the subscription,
// so billing can never run ahead of payment.
func (s *invoiceService) Draft(ctx context.Context, subscription *models.Subscription, period billing.Period) (*models.Invoice, error) {
	open, err := s.invoiceRepo.GetOpenBySubscription(ctx, subscription.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if open != nil {
		return nil, fmt.Errorf("%w: subscription %s already has open invoice %s", common.ErrStateConflict, subscription.ID, open.ID)
	}

	amount, err := billing.InvoiceAmount(subscription.UnitPrice, subscription.Quantity, subscription.Currency)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		ID:             uuid.New(),
		SubscriptionID: subscription.ID,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		Amount:         amount,
		Currency:       subscription.Currency,
		Status:         models.InvoiceDraft,
	}
	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// Send requests a payment link from the gateway and moves draft -> sent.
// A gateway timeout leaves the invoice in draft; the next tick retries, and
// no external ref exists yet so nothing can be double-charged.
func (s *invoiceService) Send(ctx context.Context, invoice *models.Invoice) error {
	if invoice.Status != models.InvoiceDraft {
		return fmt.Errorf("%w: cannot send invoice %s in status %s", common.ErrStateConflict, invoice.ID, invoice.Status)
	}

	link, err := s.gatewaySvc.CreateInvoiceLink(ctx, invoice.SubscriptionID, invoice.Amount, invoice.Currency)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	due := now.AddDate(0, 0, s.dueDays)
	invoice.Status = models.InvoiceSent
	invoice.SentAt = &now
	invoice.DueDate = &due
	invoice.ExternalPaymentRef = &link.ExternalRef
	invoice.PaymentLink = &link.URL

	return s.invoiceRepo.Update(ctx, invoice)
}

// MarkPaid moves sent|overdue -> paid. Only the reconciliation engine calls
// this, on a confirmed matching event.
func (s *invoiceService) MarkPaid(ctx context.Context, invoice *models.Invoice, paidAt time.Time) error {
	if invoice.Status != models.InvoiceSent && invoice.Status != models.InvoiceOverdue {
		return fmt.Errorf("%w: cannot pay invoice %s in status %s", common.ErrStateConflict, invoice.ID, invoice.Status)
	}

	paidAt = paidAt.UTC()
	invoice.Status = models.InvoicePaid
	invoice.PaidAt = &paidAt
	return s.invoiceRepo.Update(ctx, invoice)
}

// MarkOverdue moves sent -> overdue. Time-driven, called by the scheduler
// when now has passed the due date without a payment.
func (s *invoiceService) MarkOverdue(ctx context.Context, invoice *models.Invoice) error {
	if invoice.Status != models.InvoiceSent {
		return fmt.Errorf("%w: cannot mark invoice %s overdue in status %s", common.ErrStateConflict, invoice.ID, invoice.Status)
	}

	invoice.Status = models.InvoiceOverdue
	return s.invoiceRepo.Update(ctx, invoice)
}

// CancelOpen cancels the subscription's open invoice, if any. A paid invoice
// is never reversed; no open invoice is a no-op.
func (s *invoiceService) CancelOpen(ctx context.Context, subscriptionID uuid.UUID) error {
	invoice, err := s.invoiceRepo.GetOpenBySubscription(ctx, subscriptionID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	invoice.Status = models.InvoiceCancelled
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return err
	}
	log.Printf("Cancelled open invoice %s for subscription %s", invoice.ID, subscriptionID)
	return nil
}

func (s *invoiceService) GetOpen(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetOpenBySubscription(ctx, subscriptionID)
}

func (s *invoiceService) GetLatest(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetLatestBySubscription(ctx, subscriptionID)
}

func (s *invoiceService) GetByExternalRef(ctx context.Context, externalRef string) (*models.Invoice, error) {
	return s.invoiceRepo.GetByExternalRef(ctx, externalRef)
}
