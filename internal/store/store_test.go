package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var subscriptionCols = []string{
	"id", "user_id", "plan_id", "external_subscription_id", "external_customer_id",
	"status", "auto_renew", "current_period_start", "current_period_end", "canceled_at",
	"created_at", "updated_at",
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return &Store{db: db}, mock
}

// subscriptionRow builds a result row; an empty extID means a free row.
func subscriptionRow(rows *sqlmock.Rows, id int64, userID, planID, extID, status string) *sqlmock.Rows {
	var ext any
	if extID != "" {
		ext = extID
	}
	var canceledAt any
	if status == "canceled" {
		canceledAt = fixedNow
	}
	return rows.AddRow(id, userID, planID, ext, nil, status, extID != "" && status != "canceled",
		fixedNow, nil, canceledAt, fixedNow, fixedNow)
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error when db is nil")
	}
	if _, err := NewJobStore(nil); err == nil {
		t.Fatal("expected error when db is nil")
	}
}
