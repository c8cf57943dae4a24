package repositories

import (
	"context"
	"errors"

	"storebill/internal/common"
	"storebill/internal/models"

	"github.com/jackc/pgx/v5"
)

// BillingEventRepository is the append-only dedupe ledger. Rows are inserted
// exactly once per external event id and never updated or deleted.
type BillingEventRepository interface {
	// Insert records the event. Returns false when a row with the same
	// external event id already exists; the unique constraint plus
	// ON CONFLICT DO NOTHING makes concurrent duplicate delivery safe.
	Insert(ctx context.Context, event *models.BillingEvent) (bool, error)
	GetByExternalEventID(ctx context.Context, externalEventID string) (*models.BillingEvent, error)
}

type billingEventRepo struct {
	db DB
}

func NewBillingEventRepo(db DB) BillingEventRepository {
	return &billingEventRepo{db: db}
}

func (r *billingEventRepo) Insert(ctx context.Context, event *models.BillingEvent) (bool, error) {
	query := `
		INSERT INTO billing_events (id, external_event_id, subscription_id, type, amount, currency, occurred_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (external_event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		event.ID, event.ExternalEventID, event.SubscriptionID, event.Type,
		event.Amount, event.Currency, event.OccurredAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *billingEventRepo) GetByExternalEventID(ctx context.Context, externalEventID string) (*models.BillingEvent, error) {
	event := &models.BillingEvent{}
	query := `
		SELECT id, external_event_id, subscription_id, type, amount, currency, occurred_at, processed_at
		FROM billing_events
		WHERE external_event_id = $1
	`
	err := r.db.QueryRow(ctx, query, externalEventID).Scan(
		&event.ID, &event.ExternalEventID, &event.SubscriptionID, &event.Type,
		&event.Amount, &event.Currency, &event.OccurredAt, &event.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
