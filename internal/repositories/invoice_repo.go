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

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*models.Invoice, error)
	GetOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error)
	GetLatestBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error)
	Update(ctx context.Context, invoice *models.Invoice) error
	ListSentSince(ctx context.Context, sentBefore time.Time, limit int) ([]*models.Invoice, error)
}

type invoiceRepo struct {
	db DB
}

func NewInvoiceRepo(db DB) InvoiceRepository {
	return &invoiceRepo{db: db}
}

const invoiceColumns = `id, subscription_id, period_start, period_end, amount, currency, status,
	due_date, sent_at, paid_at, external_payment_ref, payment_link, created_at, updated_at`

func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, subscription_id, period_start, period_end, amount, currency, status,
			due_date, sent_at, paid_at, external_payment_ref, payment_link, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		invoice.ID, invoice.SubscriptionID, invoice.PeriodStart, invoice.PeriodEnd,
		invoice.Amount, invoice.Currency, invoice.Status, invoice.DueDate,
		invoice.SentAt, invoice.PaidAt, invoice.ExternalPaymentRef, invoice.PaymentLink)
	return err
}

func (r *invoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *invoiceRepo) GetByExternalRef(ctx context.Context, externalRef string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE external_payment_ref = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, externalRef))
}

// GetOpenBySubscription returns the single invoice in draft, sent, or overdue
// for a subscription. The partial unique index on (subscription_id) WHERE
// status IN ('draft','sent','overdue') guarantees at most one row.
func (r *invoiceRepo) GetOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = $1 AND status IN ('draft', 'sent', 'overdue')`
	return r.scanOne(r.db.QueryRow(ctx, query, subscriptionID))
}

func (r *invoiceRepo) GetLatestBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = $1
		ORDER BY period_start DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, subscriptionID))
}

func (r *invoiceRepo) Update(ctx context.Context, invoice *models.Invoice) error {
	query := `
		UPDATE invoices
		SET status = $1, due_date = $2, sent_at = $3, paid_at = $4,
			external_payment_ref = $5, payment_link = $6, updated_at = NOW()
		WHERE id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		invoice.Status, invoice.DueDate, invoice.SentAt, invoice.PaidAt,
		invoice.ExternalPaymentRef, invoice.PaymentLink, invoice.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListSentSince returns invoices still sitting in "sent" whose delivery is
// older than sentBefore. The reconciliation poller uses it to chase
// confirmations that never arrived over the webhook path.
func (r *invoiceRepo) ListSentSince(ctx context.Context, sentBefore time.Time, limit int) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = 'sent' AND sent_at <= $1 AND external_payment_ref IS NOT NULL
		ORDER BY sent_at
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, sentBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(
			&invoice.ID, &invoice.SubscriptionID, &invoice.PeriodStart, &invoice.PeriodEnd,
			&invoice.Amount, &invoice.Currency, &invoice.Status, &invoice.DueDate,
			&invoice.SentAt, &invoice.PaidAt, &invoice.ExternalPaymentRef, &invoice.PaymentLink,
			&invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepo) scanOne(row pgx.Row) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	err := row.Scan(
		&invoice.ID, &invoice.SubscriptionID, &invoice.PeriodStart, &invoice.PeriodEnd,
		&invoice.Amount, &invoice.Currency, &invoice.Status, &invoice.DueDate,
		&invoice.SentAt, &invoice.PaidAt, &invoice.ExternalPaymentRef, &invoice.PaymentLink,
		&invoice.CreatedAt, &invoice.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}
