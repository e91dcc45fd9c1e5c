package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			order_id BIGINT NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			amount_value VARCHAR(32) NOT NULL,
			amount_currency VARCHAR(3) NOT NULL,
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			recurring_interval_days INTEGER,
			next_retry_at TIMESTAMPTZ,
			parent_payment_id VARCHAR(64) REFERENCES payments(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id VARCHAR(64) PRIMARY KEY,
			payment_id VARCHAR(64) NOT NULL REFERENCES payments(id),
			status VARCHAR(32) NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_due_retry ON payments(is_recurring, status, next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_payment_id ON refunds(payment_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PaymentRepository) SavePayment(ctx context.Context, p *models.Payment) error {
	var interval sql.NullInt64
	if p.IsRecurring {
		interval = sql.NullInt64{Int64: int64(p.RecurringIntervalDays), Valid: true}
	}

	var nextRetry sql.NullTime
	if p.NextRetryAt != nil {
		nextRetry = sql.NullTime{Time: *p.NextRetryAt, Valid: true}
	}

	var parent sql.NullString
	if p.ParentPaymentID != nil {
		parent = sql.NullString{String: *p.ParentPaymentID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, status, amount_value, amount_currency,
			is_recurring, recurring_interval_days, next_retry_at, parent_payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.OrderID, p.UserID, p.Status, p.Amount.Value, p.Amount.Currency,
		p.IsRecurring, interval, nextRetry, parent)
	return err
}

// UpdatePaymentStatus is last-write-wins and safe to repeat with the same
// status.
func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, paymentID)
	return err
}

func (r *PaymentRepository) UpdateNextRetry(ctx context.Context, paymentID string, when time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET next_retry_at = $1, updated_at = NOW() WHERE id = $2
	`, when, paymentID)
	return err
}

func (r *PaymentRepository) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, status, amount_value, amount_currency,
			is_recurring, recurring_interval_days, next_retry_at, parent_payment_id,
			created_at, updated_at
		FROM payments WHERE id = $1
	`, paymentID)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "payment", ID: paymentID}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, status, amount_value, amount_currency,
			is_recurring, recurring_interval_days, next_retry_at, parent_payment_id,
			created_at, updated_at
		FROM payments WHERE status = $1
	`, models.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) ListDueRecurring(ctx context.Context, now time.Time) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, status, amount_value, amount_currency,
			is_recurring, recurring_interval_days, next_retry_at, parent_payment_id,
			created_at, updated_at
		FROM payments
		WHERE is_recurring = TRUE
		  AND status IN ($1, $2)
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $3
	`, models.StatusCanceled, models.StatusFailed, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PaymentRepository) SaveRefund(ctx context.Context, ref *models.Refund) error {
	var reason sql.NullString
	if ref.Reason != "" {
		reason = sql.NullString{String: ref.Reason, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refunds (id, payment_id, status, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, ref.ID, ref.PaymentID, ref.Status, reason)
	return err
}

func (r *PaymentRepository) HasRefund(ctx context.Context, paymentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM refunds WHERE payment_id = $1)
	`, paymentID).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p         models.Payment
		interval  sql.NullInt64
		nextRetry sql.NullTime
		parent    sql.NullString
	)

	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Status, &p.Amount.Value,
		&p.Amount.Currency, &p.IsRecurring, &interval, &nextRetry, &parent,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if interval.Valid {
		p.RecurringIntervalDays = int(interval.Int64)
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		p.NextRetryAt = &t
	}
	if parent.Valid {
		s := parent.String
		p.ParentPaymentID = &s
	}
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]models.Payment, error) {
	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
