package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPlanNotFound is returned when a plan id or price id has no catalog row.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrSubscriptionNotFound is returned when no subscription matches the key.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionTerminal is returned when a mutation targets a canceled row.
	ErrSubscriptionTerminal = errors.New("subscription is canceled")
)

// Store provides database-backed accessors for billing state.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for stores sharing the connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// inTx runs fn inside a transaction and commits when fn returns nil.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: %s: begin tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: %s: commit: %w", op, err)
	}
	return nil
}

// lockUser serializes every state mutation for one user until the
// surrounding transaction ends.
func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
