package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"storebill/internal/caching"
	"storebill/internal/common"
	"storebill/internal/models"
	"storebill/internal/repositories"
)

// How long processed event ids stay in the Redis fast path. The ledger table
// remains the source of truth after expiry.
const eventSeenTTL = 24 * time.Hour

// ReconciliationService matches asynchronous gateway payment events to local
// invoices and applies each confirmed outcome exactly once. The BillingEvent
// ledger absorbs at-least-once redelivery; the per-subscription key lock
// keeps event processing from interleaving with scheduler ticks.
type ReconciliationService interface {
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error

	// PollSentInvoices chases invoices that have sat in "sent" longer than
	// pollAfter without a webhook, asking the gateway for their status.
	// This is the fallback path for delayed webhooks and for link requests
	// that timed out with an unknown outcome.
	PollSentInvoices(ctx context.Context, pollAfter time.Duration, limit int) (int, error)
}

type reconciliationService struct {
	eventRepo       repositories.BillingEventRepository
	invoiceRepo     repositories.InvoiceRepository
	subscriptionSvc SubscriptionService
	gatewaySvc      GatewayService
	cacheSvc        caching.CacheService
	locks           *common.KeyLock
}

func NewReconciliationService(
	eventRepo repositories.BillingEventRepository,
	invoiceRepo repositories.InvoiceRepository,
	subscriptionSvc SubscriptionService,
	gatewaySvc GatewayService,
	cacheSvc caching.CacheService,
	locks *common.KeyLock,
) ReconciliationService {
	return &reconciliationService{
		eventRepo:       eventRepo,
		invoiceRepo:     invoiceRepo,
		subscriptionSvc: subscriptionSvc,
		gatewaySvc:      gatewaySvc,
		cacheSvc:        cacheSvc,
		locks:           locks,
	}
}

func (s *reconciliationService) HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	// Dedupe first: redelivered events ack without touching anything.
	if seen, err := s.cacheSvc.EventSeen(ctx, event.EventID); err == nil && seen {
		return nil
	}
	if _, err := s.eventRepo.GetByExternalEventID(ctx, event.EventID); err == nil {
		s.markSeen(ctx, event.EventID)
		return nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	invoice, err := s.invoiceRepo.GetByExternalRef(ctx, event.ExternalRef)
	if errors.Is(err, common.ErrNotFound) {
		// Ledger the orphan so a replay cannot slip through later, and
		// flag it for manual inspection.
		if _, ledgerErr := s.ledger(ctx, event, nil); ledgerErr != nil {
			return ledgerErr
		}
		log.Printf("ALERT: payment event %s references unknown external ref %s; flagged for review", event.EventID, event.ExternalRef)
		return fmt.Errorf("%w: no invoice for external ref %s", common.ErrNotFound, event.ExternalRef)
	}
	if err != nil {
		return err
	}

	// Serialize against scheduler ticks for the same subscription.
	key := invoice.SubscriptionID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-read under the lock; a tick may have marked it overdue meanwhile.
	invoice, err = s.invoiceRepo.GetByExternalRef(ctx, event.ExternalRef)
	if err != nil {
		return err
	}

	// A paid confirmation for an invoice that is already paid means another
	// delivery path (webhook vs status poll) won. Record the event and ack.
	if event.Status == models.PaymentStatusPaid && invoice.Status == models.InvoicePaid {
		_, err := s.ledger(ctx, event, &invoice.SubscriptionID)
		return err
	}

	inserted, err := s.ledger(ctx, event, &invoice.SubscriptionID)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent delivery of the same event won the insert race.
		return nil
	}

	if !event.Amount.Equal(invoice.Amount) || event.Currency != invoice.Currency {
		log.Printf("ALERT: event %s amount %s %s does not match invoice %s amount %s %s; flagged for review",
			event.EventID, event.Amount, event.Currency, invoice.ID, invoice.Amount, invoice.Currency)
		return fmt.Errorf("%w: event %s disagrees with invoice %s", common.ErrReconciliationMismatch, event.EventID, invoice.ID)
	}

	switch event.Status {
	case models.PaymentStatusPaid:
		return s.subscriptionSvc.HandlePaid(ctx, invoice.SubscriptionID, invoice, event.OccurredAt)
	case models.PaymentStatusFailed:
		// A failed attempt cancels nothing; the overdue timer or an
		// operator decides what happens next.
		log.Printf("Payment attempt failed for invoice %s (event %s)", invoice.ID, event.EventID)
		return nil
	case models.PaymentStatusPending:
		return nil
	default:
		return fmt.Errorf("%w: unknown event status %q", common.ErrGateway, event.Status)
	}
}

// ledger appends the event to the dedupe ledger and primes the fast path.
func (s *reconciliationService) ledger(ctx context.Context, event *models.PaymentEvent, subscriptionID *uuid.UUID) (bool, error) {
	inserted, err := s.eventRepo.Insert(ctx, &models.BillingEvent{
		ID:              uuid.New(),
		ExternalEventID: event.EventID,
		SubscriptionID:  subscriptionID,
		Type:            event.Status,
		Amount:          event.Amount,
		Currency:        event.Currency,
		OccurredAt:      event.OccurredAt,
	})
	if err != nil {
		return false, err
	}
	s.markSeen(ctx, event.EventID)
	return inserted, nil
}

func (s *reconciliationService) markSeen(ctx context.Context, eventID string) {
	if err := s.cacheSvc.MarkEventSeen(ctx, eventID, eventSeenTTL); err != nil {
		log.Printf("WARN: failed to mark event %s seen in cache: %v", eventID, err)
	}
}

func (s *reconciliationService) PollSentInvoices(ctx context.Context, pollAfter time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-pollAfter)
	invoices, err := s.invoiceRepo.ListSentSince(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, invoice := range invoices {
		status, err := s.gatewaySvc.CheckPaymentStatus(ctx, *invoice.ExternalPaymentRef)
		if err != nil {
			log.Printf("WARN: status poll failed for invoice %s: %v", invoice.ID, err)
			continue
		}
		if status != models.PaymentStatusPaid {
			continue
		}

		// Each poll attempt synthesizes a fresh event id. Idempotency for
		// this path comes from invoice state, not the ledger: an applied
		// payment leaves "sent" and drops out of the next scan, and a
		// confirmation for an already-paid invoice acks without reapplying.
		// A fixed id would strand the invoice if a crash landed between the
		// ledger insert and the state change.
		event := &models.PaymentEvent{
			EventID:     fmt.Sprintf("poll:%s:%d", *invoice.ExternalPaymentRef, time.Now().UTC().UnixNano()),
			ExternalRef: *invoice.ExternalPaymentRef,
			Status:      models.PaymentStatusPaid,
			Amount:      invoice.Amount,
			Currency:    invoice.Currency,
			OccurredAt:  time.Now().UTC(),
		}
		if err := s.HandlePaymentEvent(ctx, event); err != nil {
			log.Printf("WARN: poll reconciliation failed for invoice %s: %v", invoice.ID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}
