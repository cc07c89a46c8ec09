// Package billing runs user-initiated subscription commands. The provider is
// always called first; local state only changes after it accepts.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

// ErrNoPaidSubscription is returned when the user has no live provider-backed
// subscription to act on.
var ErrNoPaidSubscription = errors.New("billing: no paid subscription")

// Gateway issues commands to the payment provider.
type Gateway interface {
	CancelImmediately(ctx context.Context, subscriptionID string) error
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
	ListRecentInvoices(ctx context.Context, subscriptionID string, limit int) ([]stripe.InvoiceSummary, error)
}

// Store is the local subscription state used by the commands.
type Store interface {
	CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	CancelAndDowngrade(ctx context.Context, externalID string, now time.Time) (store.DowngradeResult, error)
	SetAutoRenew(ctx context.Context, externalID string, autoRenew bool) (models.Subscription, error)
	EnsureFreeSubscription(ctx context.Context, userID string, now time.Time) (models.Subscription, bool, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}

// RepairQueue accepts drift repair jobs.
type RepairQueue interface {
	Enqueue(ctx context.Context, job *models.Job) (bool, error)
}

// LocalStateDriftError means the provider applied a command but the local
// write that should mirror it failed. The two sides disagree until repaired.
type LocalStateDriftError struct {
	Op                     string
	UserID                 string
	ExternalSubscriptionID string
	Err                    error
}

func (e *LocalStateDriftError) Error() string {
	return fmt.Sprintf("billing: %s: provider applied the change but local state was not updated for %s: %v",
		e.Op, e.ExternalSubscriptionID, e.Err)
}

func (e *LocalStateDriftError) Unwrap() error {
	return e.Err
}

// Service runs cancellation and billing history commands.
type Service struct {
	gateway Gateway
	store   Store
	repairs RepairQueue
	now     func() time.Time
}

// NewService wires a Service. repairs may be nil.
func NewService(gateway Gateway, st Store, repairs RepairQueue) *Service {
	return &Service{gateway: gateway, store: st, repairs: repairs, now: time.Now}
}

// CancelImmediately ends the paid subscription on the provider and then
// downgrades the user locally. On a provider failure nothing local changes.
func (s *Service) CancelImmediately(ctx context.Context, userID string) (models.Subscription, error) {
	const op = "cancel_immediately"
	sub, extID, err := s.paidSubscription(ctx, userID)
	if err != nil {
		return models.Subscription{}, err
	}

	if err := s.gateway.CancelImmediately(ctx, extID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("subscription_id", extID).Msg("billing: provider rejected immediate cancel")
		return *sub, err
	}

	result, err := s.store.CancelAndDowngrade(ctx, extID, s.now().UTC())
	if err != nil {
		return *sub, s.drift(ctx, op, userID, extID, err)
	}

	log.Info().
		Str("user_id", userID).
		Str("subscription_id", extID).
		Bool("free_row_created", result.Free != nil).
		Msg("billing: subscription canceled immediately")
	return result.Canceled, nil
}

// CancelAtPeriodEnd stops renewal on the provider and records it locally.
// Access continues until the current period ends.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID string) (models.Subscription, error) {
	const op = "cancel_at_period_end"
	sub, extID, err := s.paidSubscription(ctx, userID)
	if err != nil {
		return models.Subscription{}, err
	}

	if err := s.gateway.CancelAtPeriodEnd(ctx, extID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("subscription_id", extID).Msg("billing: provider rejected cancel at period end")
		return *sub, err
	}

	updated, err := s.store.SetAutoRenew(ctx, extID, false)
	if err != nil {
		return *sub, s.drift(ctx, op, userID, extID, err)
	}

	log.Info().Str("user_id", userID).Str("subscription_id", extID).Msg("billing: subscription set to cancel at period end")
	return updated, nil
}

// RecentInvoices lists provider invoices for the user's paid subscription.
func (s *Service) RecentInvoices(ctx context.Context, userID string, limit int) ([]stripe.InvoiceSummary, error) {
	_, extID, err := s.paidSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.ListRecentInvoices(ctx, extID, limit)
}

// Transactions returns the local ledger for the user.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, userID, limit)
}

// StartFree gives a new user their free-tier row. It is idempotent.
func (s *Service) StartFree(ctx context.Context, userID string) (models.Subscription, bool, error) {
	return s.store.EnsureFreeSubscription(ctx, userID, s.now().UTC())
}

func (s *Service) paidSubscription(ctx context.Context, userID string) (*models.Subscription, string, error) {
	sub, err := s.store.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("billing: load subscription: %w", err)
	}
	if sub == nil || !sub.IsPaid() {
		return nil, "", ErrNoPaidSubscription
	}
	return sub, *sub.ExternalSubscriptionID, nil
}

func (s *Service) drift(ctx context.Context, op, userID, extID string, cause error) error {
	metrics.LocalStateDriftTotal.WithLabelValues(op).Inc()
	log.Error().
		Err(cause).
		Bool("alert", true).
		Str("operation", op).
		Str("user_id", userID).
		Str("subscription_id", extID).
		Msg("billing: local state drift after successful provider command")

	if s.repairs != nil {
		job := models.NewReconcileJob(extID, op+" local write failed", models.JobPriorityHigh)
		if _, err := s.repairs.Enqueue(context.WithoutCancel(ctx), job); err != nil {
			log.Error().Err(err).Str("subscription_id", extID).Msg("billing: enqueue drift repair failed")
		}
	}

	return &LocalStateDriftError{Op: op, UserID: userID, ExternalSubscriptionID: extID, Err: cause}
}
