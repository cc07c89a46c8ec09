package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

const subscriptionColumns = `
	id, user_id, plan_id, external_subscription_id, external_customer_id,
	status, auto_renew, current_period_start, current_period_end, canceled_at,
	created_at, updated_at`

// DowngradeResult describes what CancelAndDowngrade changed.
type DowngradeResult struct {
	Canceled        models.Subscription
	Free            *models.Subscription
	AlreadyCanceled bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub        models.Subscription
		externalID sql.NullString
		customerID sql.NullString
		periodEnd  sql.NullTime
		canceledAt sql.NullTime
		status     string
	)

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&externalID,
		&customerID,
		&status,
		&sub.AutoRenew,
		&sub.CurrentPeriodStart,
		&periodEnd,
		&canceledAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Status = models.SubscriptionStatus(status)
	sub.ExternalSubscriptionID = nullStringPtr(externalID)
	sub.ExternalCustomerID = nullStringPtr(customerID)
	sub.CurrentPeriodEnd = nullTimePtr(periodEnd)
	sub.CanceledAt = nullTimePtr(canceledAt)
	return &sub, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// findSubscription returns nil, nil when no row matches.
func findSubscription(ctx context.Context, q querier, where string, args ...any) (*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions ` + where
	sub, err := scanSubscription(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// ActiveSubscription returns the user's active row, or nil when the user has none.
func (s *Store) ActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := findSubscription(ctx, s.db, `WHERE user_id = $1 AND status = 'active'`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: active subscription: %w", err)
	}
	return sub, nil
}

// CurrentSubscription returns the user's active or past_due row, or nil.
func (s *Store) CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := findSubscription(ctx, s.db, `WHERE user_id = $1 AND status IN ('active', 'past_due')`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: current subscription: %w", err)
	}
	return sub, nil
}

// SubscriptionByExternalID looks a row up by the provider subscription id.
func (s *Store) SubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	sub, err := findSubscription(ctx, s.db, `WHERE external_subscription_id = $1`, externalID)
	if err != nil {
		return nil, fmt.Errorf("store: subscription by external id: %w", err)
	}
	return sub, nil
}

// ListPaidCurrentSubscriptions returns one page of live rows bound to the
// provider in id order, starting after afterID. Pass the last id of a page to
// fetch the next one; a short page means the end was reached.
func (s *Store) ListPaidCurrentSubscriptions(ctx context.Context, afterID int64, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT` + subscriptionColumns + `
FROM subscriptions
WHERE external_subscription_id IS NOT NULL
  AND status IN ('active', 'past_due')
  AND id > $1
ORDER BY id ASC
LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list paid subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate subscriptions: %w", err)
	}
	return subs, nil
}

// ActivateSubscription binds the user to a paid plan. Within one transaction
// it cancels the user's previous live row and inserts the new active row.
// Redelivery for an external id that already has a row returns that row with
// created=false and changes nothing.
func (s *Store) ActivateSubscription(ctx context.Context, in models.NewSubscription) (models.Subscription, bool, error) {
	if in.UserID == "" || in.PlanID == "" || in.ExternalSubscriptionID == "" {
		return models.Subscription{}, false, errors.New("store: activate subscription: user, plan and external id are required")
	}

	var (
		result  models.Subscription
		created bool
	)
	err := s.inTx(ctx, "activate subscription", func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, in.UserID); err != nil {
			return fmt.Errorf("store: activate subscription: %w", err)
		}

		existing, err := findSubscription(ctx, tx, `WHERE external_subscription_id = $1 FOR UPDATE`, in.ExternalSubscriptionID)
		if err != nil {
			return fmt.Errorf("store: activate subscription: lookup external id: %w", err)
		}
		if existing != nil {
			result = *existing
			return nil
		}

		previous, err := findSubscription(ctx, tx, `WHERE user_id = $1 AND status IN ('active', 'past_due') FOR UPDATE`, in.UserID)
		if err != nil {
			return fmt.Errorf("store: activate subscription: lookup current: %w", err)
		}
		if previous != nil {
			if err := cancelRow(ctx, tx, previous.ID, in.PeriodStart); err != nil {
				return fmt.Errorf("store: activate subscription: %w", err)
			}
		}

		inserted, err := scanSubscription(tx.QueryRowContext(ctx, `
INSERT INTO subscriptions (
	user_id, plan_id, external_subscription_id, external_customer_id,
	status, auto_renew, current_period_start, current_period_end
) VALUES ($1, $2, $3, $4, 'active', $5, $6, $7)
RETURNING`+subscriptionColumns,
			in.UserID,
			in.PlanID,
			in.ExternalSubscriptionID,
			nullString(in.ExternalCustomerID),
			in.AutoRenew,
			in.PeriodStart,
			in.PeriodEnd,
		))
		if err != nil {
			return fmt.Errorf("store: activate subscription: insert: %w", err)
		}

		result = *inserted
		created = true
		return nil
	})
	if err != nil {
		return models.Subscription{}, false, err
	}
	return result, created, nil
}

// EnsureFreeSubscription gives the user a free-tier row when they have no
// live row. It returns the user's current row either way.
func (s *Store) EnsureFreeSubscription(ctx context.Context, userID string, now time.Time) (models.Subscription, bool, error) {
	var (
		result  models.Subscription
		created bool
	)
	err := s.inTx(ctx, "ensure free subscription", func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("store: ensure free subscription: %w", err)
		}

		current, err := findSubscription(ctx, tx, `WHERE user_id = $1 AND status IN ('active', 'past_due')`, userID)
		if err != nil {
			return fmt.Errorf("store: ensure free subscription: lookup current: %w", err)
		}
		if current != nil {
			result = *current
			return nil
		}

		free, err := insertFreeRow(ctx, tx, userID, now)
		if err != nil {
			return fmt.Errorf("store: ensure free subscription: %w", err)
		}
		result = *free
		created = true
		return nil
	})
	return result, created, err
}

// CancelAndDowngrade cancels the paid row and, in the same transaction,
// creates a single free-tier row unless the user already has another live
// row. Calling it again for an already canceled row is a no-op.
func (s *Store) CancelAndDowngrade(ctx context.Context, externalID string, now time.Time) (DowngradeResult, error) {
	var result DowngradeResult
	err := s.inTx(ctx, "cancel and downgrade", func(tx *sql.Tx) error {
		sub, err := lockByExternalID(ctx, tx, externalID)
		if err != nil {
			return fmt.Errorf("store: cancel and downgrade: %w", err)
		}
		if sub.Status.Terminal() {
			result = DowngradeResult{Canceled: *sub, AlreadyCanceled: true}
			return nil
		}

		if err := cancelRow(ctx, tx, sub.ID, now); err != nil {
			return fmt.Errorf("store: cancel and downgrade: %w", err)
		}
		sub.Status = models.SubscriptionCanceled
		sub.AutoRenew = false
		sub.CanceledAt = &now
		result.Canceled = *sub

		other, err := findSubscription(ctx, tx, `WHERE user_id = $1 AND status IN ('active', 'past_due') FOR UPDATE`, sub.UserID)
		if err != nil {
			return fmt.Errorf("store: cancel and downgrade: lookup current: %w", err)
		}
		if other != nil {
			return nil
		}

		free, err := insertFreeRow(ctx, tx, sub.UserID, now)
		if err != nil {
			return fmt.Errorf("store: cancel and downgrade: %w", err)
		}
		result.Free = free
		return nil
	})
	return result, err
}

// ApplyRemoteState overwrites status and auto_renew from the provider's view
// of the subscription. No other column is touched. Use CancelAndDowngrade for
// a canceled remote state.
func (s *Store) ApplyRemoteState(ctx context.Context, externalID string, status models.SubscriptionStatus, autoRenew bool) (models.Subscription, error) {
	if !status.Current() {
		return models.Subscription{}, fmt.Errorf("store: apply remote state: status %q is not a live status", status)
	}
	return s.mutateByExternalID(ctx, "apply remote state", externalID, func(tx *sql.Tx, sub *models.Subscription) error {
		_, err := tx.ExecContext(ctx, `
UPDATE subscriptions
SET status = $2, auto_renew = $3, updated_at = now()
WHERE id = $1`, sub.ID, string(status), autoRenew)
		sub.Status = status
		sub.AutoRenew = autoRenew
		return err
	})
}

// MarkPastDue flags a failed payment on the row.
func (s *Store) MarkPastDue(ctx context.Context, externalID string) (models.Subscription, error) {
	return s.mutateByExternalID(ctx, "mark past due", externalID, func(tx *sql.Tx, sub *models.Subscription) error {
		_, err := tx.ExecContext(ctx, `
UPDATE subscriptions
SET status = 'past_due', updated_at = now()
WHERE id = $1`, sub.ID)
		sub.Status = models.SubscriptionPastDue
		return err
	})
}

// SetAutoRenew records a cancel-at-period-end (false) or a resume (true).
func (s *Store) SetAutoRenew(ctx context.Context, externalID string, autoRenew bool) (models.Subscription, error) {
	return s.mutateByExternalID(ctx, "set auto renew", externalID, func(tx *sql.Tx, sub *models.Subscription) error {
		_, err := tx.ExecContext(ctx, `
UPDATE subscriptions
SET auto_renew = $2, updated_at = now()
WHERE id = $1`, sub.ID, autoRenew)
		sub.AutoRenew = autoRenew
		return err
	})
}

// ExtendPeriod moves the billing window forward. Older windows are ignored so
// out-of-order invoices cannot move it back.
func (s *Store) ExtendPeriod(ctx context.Context, externalID string, start, end time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE subscriptions
SET current_period_start = $2, current_period_end = $3, updated_at = now()
WHERE external_subscription_id = $1
  AND status <> 'canceled'
  AND (current_period_end IS NULL OR current_period_end < $3)`, externalID, start, end)
	if err != nil {
		return false, fmt.Errorf("store: extend period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: extend period: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) mutateByExternalID(ctx context.Context, op, externalID string, fn func(tx *sql.Tx, sub *models.Subscription) error) (models.Subscription, error) {
	var result models.Subscription
	err := s.inTx(ctx, op, func(tx *sql.Tx) error {
		sub, err := lockByExternalID(ctx, tx, externalID)
		if err != nil {
			return fmt.Errorf("store: %s: %w", op, err)
		}
		if sub.Status.Terminal() {
			return fmt.Errorf("store: %s: %s: %w", op, externalID, ErrSubscriptionTerminal)
		}
		if err := fn(tx, sub); err != nil {
			return fmt.Errorf("store: %s: %w", op, err)
		}
		result = *sub
		return nil
	})
	return result, err
}

// lockByExternalID takes the owning user's lock and then the row lock, in the
// same order every other mutation uses.
func lockByExternalID(ctx context.Context, tx *sql.Tx, externalID string) (*models.Subscription, error) {
	var userID string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM subscriptions WHERE external_subscription_id = $1`, externalID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", externalID, ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup owner: %w", err)
	}

	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	sub, err := findSubscription(ctx, tx, `WHERE external_subscription_id = $1 FOR UPDATE`, externalID)
	if err != nil {
		return nil, fmt.Errorf("lock row: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%s: %w", externalID, ErrSubscriptionNotFound)
	}
	return sub, nil
}

func cancelRow(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
UPDATE subscriptions
SET status = 'canceled', auto_renew = FALSE, canceled_at = $2, updated_at = now()
WHERE id = $1 AND status <> 'canceled'`, id, at)
	if err != nil {
		return fmt.Errorf("cancel row %d: %w", id, err)
	}
	return nil
}

func insertFreeRow(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (*models.Subscription, error) {
	sub, err := scanSubscription(tx.QueryRowContext(ctx, `
INSERT INTO subscriptions (user_id, plan_id, status, auto_renew, current_period_start)
VALUES ($1, $2, 'active', FALSE, $3)
RETURNING`+subscriptionColumns, userID, models.FreePlanID, now))
	if err != nil {
		return nil, fmt.Errorf("insert free row: %w", err)
	}
	return sub, nil
}
