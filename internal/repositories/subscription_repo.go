package repositories

import (
	"context"
	"errors"
	"time"

	"storebill/internal/common"
	"storebill/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	List(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db DB
}

func NewSubscriptionRepo(db DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, customer_id, product_id, quantity, unit_price, currency, interval, status,
	start_date, trial_end, current_period_start, current_period_end, next_billing_date, end_date,
	cancel_at_period_end, auto_charge, external_subscription_id, cancel_reason, metadata, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, subscription *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, customer_id, product_id, quantity, unit_price, currency, interval, status,
			start_date, trial_end, current_period_start, current_period_end, next_billing_date, end_date,
			cancel_at_period_end, auto_charge, external_subscription_id, cancel_reason, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		subscription.ID, subscription.CustomerID, subscription.ProductID, subscription.Quantity,
		subscription.UnitPrice, subscription.Currency, subscription.Interval, subscription.Status,
		subscription.StartDate, subscription.TrialEnd, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd,
		subscription.NextBillingDate, subscription.EndDate, subscription.CancelAtPeriodEnd, subscription.AutoCharge,
		subscription.ExternalSubscriptionID, subscription.CancelReason, subscription.Metadata)
	return err
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *subscriptionRepo) Update(ctx context.Context, subscription *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1, trial_end = $2, current_period_start = $3, current_period_end = $4,
			next_billing_date = $5, end_date = $6, cancel_at_period_end = $7,
			external_subscription_id = $8, cancel_reason = $9, metadata = $10, updated_at = NOW()
		WHERE id = $11
	`
	tag, err := r.db.Exec(ctx, query,
		subscription.Status, subscription.TrialEnd, subscription.CurrentPeriodStart, subscription.CurrentPeriodEnd,
		subscription.NextBillingDate, subscription.EndDate, subscription.CancelAtPeriodEnd,
		subscription.ExternalSubscriptionID, subscription.CancelReason, subscription.Metadata, subscription.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListDue returns subscriptions the scheduler must look at: the current
// period has ended, the trial window has expired, the first invoice still
// needs creating or sending, or an open invoice may have crossed its due
// date.
func (r *subscriptionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ('trialing', 'active', 'past_due', 'incomplete')
			AND (next_billing_date <= $1
				OR status = 'incomplete'
				OR (status = 'trialing' AND trial_end <= $1)
				OR id IN (SELECT subscription_id FROM invoices
					WHERE status = 'draft' OR status = 'overdue' OR (status = 'sent' AND due_date <= $1)))
		ORDER BY next_billing_date
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *subscriptionRepo) scanOne(row pgx.Row) (*models.Subscription, error) {
	subscription := &models.Subscription{}
	err := row.Scan(
		&subscription.ID, &subscription.CustomerID, &subscription.ProductID, &subscription.Quantity,
		&subscription.UnitPrice, &subscription.Currency, &subscription.Interval, &subscription.Status,
		&subscription.StartDate, &subscription.TrialEnd, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd,
		&subscription.NextBillingDate, &subscription.EndDate, &subscription.CancelAtPeriodEnd, &subscription.AutoCharge,
		&subscription.ExternalSubscriptionID, &subscription.CancelReason, &subscription.Metadata,
		&subscription.CreatedAt, &subscription.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *subscriptionRepo) scanMany(rows pgx.Rows) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription
	for rows.Next() {
		subscription := &models.Subscription{}
		if err := rows.Scan(
			&subscription.ID, &subscription.CustomerID, &subscription.ProductID, &subscription.Quantity,
			&subscription.UnitPrice, &subscription.Currency, &subscription.Interval, &subscription.Status,
			&subscription.StartDate, &subscription.TrialEnd, &subscription.CurrentPeriodStart, &subscription.CurrentPeriodEnd,
			&subscription.NextBillingDate, &subscription.EndDate, &subscription.CancelAtPeriodEnd, &subscription.AutoCharge,
			&subscription.ExternalSubscriptionID, &subscription.CancelReason, &subscription.Metadata,
			&subscription.CreatedAt, &subscription.UpdatedAt); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, rows.Err()
}
