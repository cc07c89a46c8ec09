package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

const defaultPageSize = 200

// RecordTransaction appends a ledger row. A row that already exists for the
// same (subscription, invoice) is left alone and reported as recorded=false.
func (s *Store) RecordTransaction(ctx context.Context, t models.NewTransaction) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("store: record transaction: %w", err)
	}

	createdAt := sql.NullTime{Time: t.CreatedAt, Valid: !t.CreatedAt.IsZero()}

	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO transactions (
	user_id, subscription_id, external_invoice_id, external_payment_id,
	amount, currency, status, description, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
ON CONFLICT DO NOTHING
RETURNING id`,
		t.UserID,
		t.SubscriptionID,
		nullString(t.ExternalInvoiceID),
		nullString(t.ExternalPaymentID),
		t.Amount,
		t.Currency,
		t.Status,
		t.Description,
		createdAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: record transaction: %w", err)
	}
	return true, nil
}

// ListTransactions returns the user's ledger, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, subscription_id, external_invoice_id, external_payment_id,
	amount, currency, status, description, created_at
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var (
			t         models.Transaction
			invoiceID sql.NullString
			paymentID sql.NullString
		)
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.SubscriptionID,
			&invoiceID,
			&paymentID,
			&t.Amount,
			&t.Currency,
			&t.Status,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		t.ExternalInvoiceID = nullStringPtr(invoiceID)
		t.ExternalPaymentID = nullStringPtr(paymentID)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate transactions: %w", err)
	}
	return txns, nil
}
