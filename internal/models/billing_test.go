package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionStatus(t *testing.T) {
	assert.True(t, SubscriptionActive.Current())
	assert.True(t, SubscriptionPastDue.Current())
	assert.False(t, SubscriptionCanceled.Current())

	assert.True(t, SubscriptionCanceled.Terminal())
	assert.False(t, SubscriptionPastDue.Terminal())
}

func TestSubscriptionIsPaid(t *testing.T) {
	ext := "sub_1"
	empty := ""

	assert.True(t, Subscription{ExternalSubscriptionID: &ext}.IsPaid())
	assert.False(t, Subscription{ExternalSubscriptionID: &empty}.IsPaid())
	assert.False(t, Subscription{}.IsPaid())
}

func TestNewTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		txn     NewTransaction
		wantErr bool
	}{
		{name: "invoice", txn: NewTransaction{SubscriptionID: 1, ExternalInvoiceID: "in_1"}},
		{name: "payment", txn: NewTransaction{SubscriptionID: 1, ExternalPaymentID: "pi_1"}},
		{name: "missing subscription", txn: NewTransaction{ExternalInvoiceID: "in_1"}, wantErr: true},
		{name: "untraceable", txn: NewTransaction{SubscriptionID: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txn.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
