package background

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"storebill/internal/repositories"
	"storebill/internal/services"
)

// JobScheduler drives the periodic billing work: the tick that finds due
// subscriptions and the poll that chases unresolved payments. The work is
// I/O-bound, so independent subscriptions fan out through a bounded worker
// pool; the cap protects the payment gateway from request bursts.
type JobScheduler struct {
	scheduler        gocron.Scheduler
	subscriptionRepo repositories.SubscriptionRepository
	subscriptionSvc  services.SubscriptionService
	reconciliation   services.ReconciliationService

	tickInterval time.Duration
	pollAfter    time.Duration
	workerCap    int
	batchLimit   int

	jobs map[string]gocron.Job
	mu   sync.RWMutex
}

// NewJobScheduler creates the billing scheduler. workerCap bounds concurrent
// per-subscription ticks; pollAfter is how long an invoice may sit in "sent"
// before its status is polled directly.
func NewJobScheduler(
	subscriptionRepo repositories.SubscriptionRepository,
	subscriptionSvc services.SubscriptionService,
	reconciliation services.ReconciliationService,
	tickInterval time.Duration,
	pollAfter time.Duration,
	workerCap int,
) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:        scheduler,
		subscriptionRepo: subscriptionRepo,
		subscriptionSvc:  subscriptionSvc,
		reconciliation:   reconciliation,
		tickInterval:     tickInterval,
		pollAfter:        pollAfter,
		workerCap:        workerCap,
		batchLimit:       1000,
		jobs:             make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting billing scheduler (tick every %s, %d workers)", js.tickInterval, js.workerCap)
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping billing scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	tickJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.tickInterval),
		gocron.NewTask(js.runTick, context.Background()),
		gocron.WithName("billing-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create billing tick job: %v", err)
	} else {
		js.jobs["billing-tick"] = tickJob
	}

	pollJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.tickInterval*3),
		gocron.NewTask(js.runReconciliationPoll, context.Background()),
		gocron.WithName("reconciliation-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create reconciliation poll job: %v", err)
	} else {
		js.jobs["reconciliation-poll"] = pollJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// runTick is one scheduler pass: collect due subscriptions and tick each
// one through the bounded worker pool.
func (js *JobScheduler) runTick(ctx context.Context) error {
	affected, err := js.RunTick(ctx)
	if err != nil {
		log.Printf("Billing tick failed: %v", err)
		return err
	}
	if len(affected) > 0 {
		log.Printf("Billing tick advanced %d subscriptions", len(affected))
	}
	return nil
}

// RunTick finds due subscriptions, drives each one's time-based transitions,
// and returns the ids that changed.
func (js *JobScheduler) RunTick(ctx context.Context) ([]uuid.UUID, error) {
	due, err := js.subscriptionRepo.ListDue(ctx, time.Now().UTC(), js.batchLimit)
	if err != nil {
		return nil, err
	}

	semaphore := make(chan struct{}, js.workerCap)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var affected []uuid.UUID

	for _, subscription := range due {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			changed, err := js.subscriptionSvc.Tick(ctx, id)
			if err != nil {
				log.Printf("Tick failed for subscription %s: %v", id, err)
				return
			}
			if changed {
				mu.Lock()
				affected = append(affected, id)
				mu.Unlock()
			}
		}(subscription.ID)
	}

	wg.Wait()
	return affected, nil
}

func (js *JobScheduler) runReconciliationPoll(ctx context.Context) error {
	resolved, err := js.reconciliation.PollSentInvoices(ctx, js.pollAfter, js.batchLimit)
	if err != nil {
		log.Printf("Reconciliation poll failed: %v", err)
		return err
	}
	if resolved > 0 {
		log.Printf("Reconciliation poll resolved %d invoices", resolved)
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobs)
	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	status["jobs"] = names

	return status
}
