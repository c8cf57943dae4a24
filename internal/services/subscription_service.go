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

// CreateSubscriptionRequest carries validated-at-the-edge creation input.
type CreateSubscriptionRequest struct {
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	Interval   models.Interval
	StartDate  time.Time
	TrialDays  int
	EndDate    *time.Time
	AutoCharge bool
	Metadata   map[string]string
}

// SubscriptionService owns the subscription state machine:
//
//	trialing -> active <-> past_due -> canceled
//
// with incomplete as the entry state when the first invoice could not be
// created. Period advancement is driven by the schedule calculator and only
// ever happens after the open invoice is paid.
type SubscriptionService interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*models.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error)

	// Tick runs the time-driven transitions for one subscription: trial
	// expiry, draft delivery, overdue marking, period advancement, term
	// completion. It takes the subscription's key lock itself and reports
	// whether anything changed.
	Tick(ctx context.Context, id uuid.UUID) (bool, error)

	// HandlePaid applies a confirmed payment: invoice paid, past_due
	// recovery, then guarded period advancement. The reconciliation engine
	// is the only caller and already holds the subscription's key lock.
	HandlePaid(ctx context.Context, subscriptionID uuid.UUID, invoice *models.Invoice, paidAt time.Time) error
}

type subscriptionService struct {
	subscriptionRepo repositories.SubscriptionRepository
	invoiceSvc       InvoiceService
	directorySvc     DirectoryService
	gatewaySvc       GatewayService
	locks            *common.KeyLock

	// autoCancelOverdueAfterDays > 0 cancels a subscription whose invoice
	// has been overdue that many days past its due date. Zero keeps
	// past_due subscriptions indefinitely, which is the default.
	autoCancelOverdueAfterDays int
}

func NewSubscriptionService(
	subscriptionRepo repositories.SubscriptionRepository,
	invoiceSvc InvoiceService,
	directorySvc DirectoryService,
	gatewaySvc GatewayService,
	locks *common.KeyLock,
	autoCancelOverdueAfterDays int,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo:           subscriptionRepo,
		invoiceSvc:                 invoiceSvc,
		directorySvc:               directorySvc,
		gatewaySvc:                 gatewaySvc,
		locks:                      locks,
		autoCancelOverdueAfterDays: autoCancelOverdueAfterDays,
	}
}

// Create validates the request, snapshots the product price, computes the
// first billing period, and drafts the first invoice. The price snapshot
// means later catalog edits never change what this subscriber pays.
func (s *subscriptionService) Create(ctx context.Context, req CreateSubscriptionRequest) (*models.Subscription, error) {
	if err := validateCreateRequest(&req); err != nil {
		return nil, err
	}

	customer, err := s.directorySvc.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	product, err := s.directorySvc.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("product lookup: %w", err)
	}
	if product.UnitPrice.IsNegative() {
		return nil, common.NewValidationError("product", "unit price must not be negative")
	}

	period, err := billing.FirstPeriod(req.StartDate, req.Interval, req.TrialDays, req.EndDate)
	if errors.Is(err, common.ErrTermComplete) {
		return nil, common.NewValidationError("end_date", "falls before the end of the first billing period")
	}
	if err != nil {
		return nil, err
	}

	status := models.SubscriptionActive
	if req.TrialDays > 0 {
		status = models.SubscriptionTrialing
	}

	now := time.Now().UTC()
	nextBilling := period.End
	subscription := &models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         customer.ID,
		ProductID:          product.ID,
		Quantity:           req.Quantity,
		UnitPrice:          product.UnitPrice,
		Currency:           product.Currency,
		Interval:           req.Interval,
		Status:             status,
		StartDate:          billing.Normalize(req.StartDate),
		TrialEnd:           period.TrialEnd,
		CurrentPeriodStart: period.Start,
		CurrentPeriodEnd:   period.End,
		NextBillingDate:    &nextBilling,
		AutoCharge:         req.AutoCharge,
		Metadata:           req.Metadata,
	}
	if req.EndDate != nil {
		normalized := billing.Normalize(*req.EndDate)
		subscription.EndDate = &normalized
	}

	if err := s.subscriptionRepo.Create(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	invoice, err := s.invoiceSvc.Draft(ctx, subscription, period)
	if err != nil {
		// The subscription exists but cannot bill yet; park it in
		// incomplete and let the scheduler retry the first invoice.
		log.Printf("WARN: first invoice draft failed for subscription %s: %v", subscription.ID, err)
		subscription.Status = models.SubscriptionIncomplete
		if updateErr := s.subscriptionRepo.Update(ctx, subscription); updateErr != nil {
			return nil, updateErr
		}
		return subscription, nil
	}

	// Invoices are delivered immediately unless the subscriber is still in
	// trial with auto-collection on; those go out when the trial expires.
	if !req.AutoCharge || !subscription.InTrial(now) {
		if err := s.invoiceSvc.Send(ctx, invoice); err != nil {
			// Draft stays; the scheduler retries delivery on its next pass.
			log.Printf("WARN: first invoice send failed for subscription %s: %v", subscription.ID, err)
		}
	}

	return subscription, nil
}

func validateCreateRequest(req *CreateSubscriptionRequest) error {
	if req.CustomerID == uuid.Nil {
		return common.NewValidationError("customer_id", "is required")
	}
	if req.ProductID == uuid.Nil {
		return common.NewValidationError("product_id", "is required")
	}
	if req.Quantity < 1 {
		return common.NewValidationError("quantity", "must be at least 1")
	}
	if !req.Interval.Valid() {
		return common.NewValidationError("interval", "must be one of day, week, month, year")
	}
	if req.StartDate.IsZero() {
		return common.NewValidationError("start_date", "is required")
	}
	if req.TrialDays < 0 {
		return common.NewValidationError("trial_days", "must not be negative")
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return common.NewValidationError("end_date", "must be after start_date")
	}
	return nil
}

func (s *subscriptionService) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.subscriptionRepo.GetByID(ctx, id)
}

func (s *subscriptionService) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	return s.subscriptionRepo.List(ctx, limit, offset)
}

// Cancel terminates a subscription. Idempotent: canceling an already
// canceled subscription returns it unchanged.
func (s *subscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	key := id.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	subscription, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if subscription.Terminal() {
		return subscription, nil
	}

	if err := s.cancelLocked(ctx, subscription, models.CancelReasonRequested); err != nil {
		return nil, err
	}
	return subscription, nil
}

// cancelLocked performs the terminal transition. Caller holds the key lock.
// The open invoice is cancelled; a paid invoice is never reversed.
func (s *subscriptionService) cancelLocked(ctx context.Context, subscription *models.Subscription, reason string) error {
	if err := s.invoiceSvc.CancelOpen(ctx, subscription.ID); err != nil {
		return err
	}

	subscription.Status = models.SubscriptionCanceled
	subscription.NextBillingDate = nil
	subscription.CancelReason = &reason
	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return err
	}

	if subscription.ExternalSubscriptionID != nil {
		if err := s.gatewaySvc.CancelSubscription(ctx, *subscription.ExternalSubscriptionID); err != nil {
			log.Printf("WARN: gateway cancel failed for subscription %s: %v", subscription.ID, err)
		}
	}

	log.Printf("Subscription %s canceled (reason: %s)", subscription.ID, reason)
	return nil
}

func (s *subscriptionService) Tick(ctx context.Context, id uuid.UUID) (bool, error) {
	key := id.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-fetch under the lock: a cancel or reconciliation may have won the
	// race since this subscription was scheduled.
	subscription, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if subscription.Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	changed := false

	// Trial expiry: billing begins.
	if subscription.Status == models.SubscriptionTrialing && subscription.TrialEnd != nil && !now.Before(*subscription.TrialEnd) {
		subscription.Status = models.SubscriptionActive
		if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
			return false, err
		}
		changed = true
	}

	if subscription.Status == models.SubscriptionIncomplete {
		retried, err := s.retryFirstInvoice(ctx, subscription, now)
		return changed || retried, err
	}

	open, err := s.invoiceSvc.GetOpen(ctx, subscription.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return changed, err
	}

	if open != nil {
		did, err := s.tickOpenInvoice(ctx, subscription, open, now)
		return changed || did, err
	}

	// No open invoice: advance only once the period has actually elapsed
	// and the last invoice was paid, so billing never runs ahead of payment.
	if now.Before(subscription.CurrentPeriodEnd) {
		return changed, nil
	}
	paid, err := s.lastInvoicePaid(ctx, subscription.ID)
	if err != nil {
		return changed, err
	}
	if !paid {
		return changed, nil
	}

	if err := s.advanceLocked(ctx, subscription, now); err != nil {
		return changed, err
	}
	return true, nil
}

// tickOpenInvoice runs the time-driven transitions on the open invoice.
func (s *subscriptionService) tickOpenInvoice(ctx context.Context, subscription *models.Subscription, open *models.Invoice, now time.Time) (bool, error) {
	switch open.Status {
	case models.InvoiceDraft:
		// Deliver once the trial no longer defers it. Also retries drafts
		// whose initial delivery hit a gateway timeout.
		if subscription.AutoCharge && subscription.InTrial(now) {
			return false, nil
		}
		if err := s.invoiceSvc.Send(ctx, open); err != nil {
			log.Printf("WARN: invoice %s delivery failed: %v", open.ID, err)
			return false, nil
		}
		return true, nil

	case models.InvoiceSent:
		if open.DueDate == nil || !now.After(*open.DueDate) {
			return false, nil
		}
		if err := s.invoiceSvc.MarkOverdue(ctx, open); err != nil {
			return false, err
		}
		if subscription.Status == models.SubscriptionActive {
			subscription.Status = models.SubscriptionPastDue
			if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
				return false, err
			}
		}
		return true, nil

	case models.InvoiceOverdue:
		// Overdue does not cancel by itself; that is an operator-level
		// policy enabled explicitly through configuration.
		if s.autoCancelOverdueAfterDays <= 0 || open.DueDate == nil {
			return false, nil
		}
		cutoff := open.DueDate.AddDate(0, 0, s.autoCancelOverdueAfterDays)
		if !now.After(cutoff) {
			return false, nil
		}
		if err := s.cancelLocked(ctx, subscription, models.CancelReasonOverdue); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// retryFirstInvoice drafts the opening invoice for a subscription parked in
// incomplete, restoring it to its proper entry status on success.
func (s *subscriptionService) retryFirstInvoice(ctx context.Context, subscription *models.Subscription, now time.Time) (bool, error) {
	period := billing.Period{
		Start:    subscription.CurrentPeriodStart,
		End:      subscription.CurrentPeriodEnd,
		TrialEnd: subscription.TrialEnd,
	}
	invoice, err := s.invoiceSvc.Draft(ctx, subscription, period)
	if err != nil {
		log.Printf("WARN: first invoice retry failed for subscription %s: %v", subscription.ID, err)
		return false, nil
	}

	subscription.Status = models.SubscriptionActive
	if subscription.InTrial(now) {
		subscription.Status = models.SubscriptionTrialing
	}
	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return false, err
	}

	if !subscription.AutoCharge || !subscription.InTrial(now) {
		if err := s.invoiceSvc.Send(ctx, invoice); err != nil {
			log.Printf("WARN: invoice %s delivery failed: %v", invoice.ID, err)
		}
	}
	return true, nil
}

func (s *subscriptionService) lastInvoicePaid(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	latest, err := s.invoiceSvc.GetLatest(ctx, subscriptionID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Status == models.InvoicePaid, nil
}

// HandlePaid applies a confirmed payment outcome. Caller holds the key lock.
func (s *subscriptionService) HandlePaid(ctx context.Context, subscriptionID uuid.UUID, invoice *models.Invoice, paidAt time.Time) error {
	subscription, err := s.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	// A late confirmation after cancellation stays in the ledger but must
	// not resurrect the subscription or touch its invoices.
	if subscription.Terminal() {
		log.Printf("WARN: payment for invoice %s arrived after subscription %s was canceled; recorded, not applied", invoice.ID, subscriptionID)
		return nil
	}

	if err := s.invoiceSvc.MarkPaid(ctx, invoice, paidAt); err != nil {
		return err
	}

	// Late payment recovers a past_due subscription.
	if subscription.Status == models.SubscriptionPastDue {
		subscription.Status = models.SubscriptionActive
		if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if now.Before(subscription.CurrentPeriodEnd) {
		// Paid mid-period; the scheduler advances when the period elapses.
		return nil
	}
	return s.advanceLocked(ctx, subscription, now)
}

// advanceLocked moves the subscription into its next billing period and
// drafts the invoice for it. Caller holds the key lock and has verified the
// period elapsed with the open invoice paid.
func (s *subscriptionService) advanceLocked(ctx context.Context, subscription *models.Subscription, now time.Time) error {
	if subscription.CancelAtPeriodEnd {
		return s.cancelLocked(ctx, subscription, models.CancelReasonRequested)
	}

	anchor := subscription.StartDate
	if subscription.TrialEnd != nil {
		anchor = *subscription.TrialEnd
	}

	period, err := billing.NextPeriod(anchor, subscription.CurrentPeriodEnd, subscription.Interval, subscription.EndDate)
	if errors.Is(err, common.ErrTermComplete) {
		// The term is over: no further partial period is computed or billed.
		return s.cancelLocked(ctx, subscription, models.CancelReasonTermComplete)
	}
	if err != nil {
		return err
	}

	subscription.CurrentPeriodStart = period.Start
	subscription.CurrentPeriodEnd = period.End
	nextBilling := period.End
	subscription.NextBillingDate = &nextBilling
	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return err
	}

	invoice, err := s.invoiceSvc.Draft(ctx, subscription, period)
	if err != nil {
		return err
	}
	if err := s.invoiceSvc.Send(ctx, invoice); err != nil {
		// Draft stays; the scheduler retries delivery.
		log.Printf("WARN: invoice %s delivery failed: %v", invoice.ID, err)
	}

	log.Printf("Subscription %s advanced to period [%s, %s)", subscription.ID,
		period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
	return nil
}
