package models

import (
	"errors"
	"time"
)

// SubscriptionStatus is the locally tracked state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Terminal reports whether the row must never be mutated again.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCanceled
}

// Current reports whether the row is the user's live assignment.
func (s SubscriptionStatus) Current() bool {
	return s == SubscriptionActive || s == SubscriptionPastDue
}

// Subscription assigns one user to one plan over a time window. Rows are never
// deleted; a canceled row is history.
type Subscription struct {
	ID                     int64              `json:"id"`
	UserID                 string             `json:"user_id"`
	PlanID                 string             `json:"plan_id"`
	ExternalSubscriptionID *string            `json:"external_subscription_id,omitempty"`
	ExternalCustomerID     *string            `json:"external_customer_id,omitempty"`
	Status                 SubscriptionStatus `json:"status"`
	AutoRenew              bool               `json:"auto_renew"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// IsPaid reports whether the row is bound to a provider subscription.
func (s Subscription) IsPaid() bool {
	return s.ExternalSubscriptionID != nil && *s.ExternalSubscriptionID != ""
}

// NewSubscription carries the fields needed to activate a paid subscription.
type NewSubscription struct {
	UserID                 string
	PlanID                 string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	AutoRenew              bool
	PeriodStart            time.Time
	PeriodEnd              *time.Time
}

// Transaction is an immutable ledger entry for a realized payment.
type Transaction struct {
	ID                int64     `json:"id"`
	UserID            string    `json:"user_id"`
	SubscriptionID    int64     `json:"subscription_id"`
	ExternalInvoiceID *string   `json:"external_invoice_id,omitempty"`
	ExternalPaymentID *string   `json:"external_payment_id,omitempty"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewTransaction is the insert form of a Transaction.
type NewTransaction struct {
	UserID            string
	SubscriptionID    int64
	ExternalInvoiceID string
	ExternalPaymentID string
	Amount            int64
	Currency          string
	Status            string
	Description       string
	CreatedAt         time.Time
}

// Validate enforces that the ledger row can be traced to the provider.
func (t NewTransaction) Validate() error {
	if t.SubscriptionID == 0 {
		return errors.New("subscription id is required")
	}
	if t.ExternalInvoiceID == "" && t.ExternalPaymentID == "" {
		return errors.New("external invoice id or payment id is required")
	}
	return nil
}
