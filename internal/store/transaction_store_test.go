package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

func invoiceTxn() models.NewTransaction {
	return models.NewTransaction{
		UserID:            "u1",
		SubscriptionID:    2,
		ExternalInvoiceID: "in_1",
		ExternalPaymentID: "pi_1",
		Amount:            1900,
		Currency:          "usd",
		Status:            "succeeded",
		Description:       "Pro monthly",
		CreatedAt:         fixedNow,
	}
}

func TestRecordTransactionInserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs("u1", int64(2), "in_1", "pi_1", int64(1900), "usd", "succeeded", "Pro monthly", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))

	recorded, err := s.RecordTransaction(context.Background(), invoiceTxn())
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestRecordTransactionDuplicateIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`ON CONFLICT DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	recorded, err := s.RecordTransaction(context.Background(), invoiceTxn())
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestRecordTransactionNeedsProviderReference(t *testing.T) {
	s, _ := newMockStore(t)
	txn := invoiceTxn()
	txn.ExternalInvoiceID = ""
	txn.ExternalPaymentID = ""

	_, err := s.RecordTransaction(context.Background(), txn)
	assert.Error(t, err)
}

func TestListTransactionsClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "subscription_id", "external_invoice_id", "external_payment_id",
		"amount", "currency", "status", "description", "created_at",
	}).
		AddRow(int64(11), "u1", int64(2), "in_2", nil, int64(1900), "usd", "succeeded", "Pro monthly", fixedNow).
		AddRow(int64(10), "u1", int64(2), nil, "pi_1", int64(1900), "usd", "succeeded", "Checkout", fixedNow)
	mock.ExpectQuery(`FROM transactions`).WithArgs("u1", defaultPageSize).WillReturnRows(rows)

	txns, err := s.ListTransactions(context.Background(), "u1", 5000)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "in_2", *txns[0].ExternalInvoiceID)
	assert.Nil(t, txns[0].ExternalPaymentID)
	assert.Nil(t, txns[1].ExternalInvoiceID)
}

func TestListTransactionsEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM transactions`).WithArgs("u1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	txns, err := s.ListTransactions(context.Background(), "u1", 50)
	require.NoError(t, err)
	assert.NotNil(t, txns)
	assert.Empty(t, txns)
}
