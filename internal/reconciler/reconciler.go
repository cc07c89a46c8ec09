// Package reconciler applies provider webhook events to local subscription
// state. Every transition is safe to replay.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

// ErrMalformedEvent marks an event that lacks the data needed to act on it.
// Redelivery cannot fix it, so it is acknowledged rather than retried.
var ErrMalformedEvent = errors.New("reconciler: malformed event")

// Outcome summarizes what applying an event did.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
)

// Store is the local state the reconciler mutates.
type Store interface {
	ActivateSubscription(ctx context.Context, in models.NewSubscription) (models.Subscription, bool, error)
	SubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
	MarkPastDue(ctx context.Context, externalID string) (models.Subscription, error)
	ApplyRemoteState(ctx context.Context, externalID string, status models.SubscriptionStatus, autoRenew bool) (models.Subscription, error)
	CancelAndDowngrade(ctx context.Context, externalID string, now time.Time) (store.DowngradeResult, error)
	ExtendPeriod(ctx context.Context, externalID string, start, end time.Time) (bool, error)
	RecordTransaction(ctx context.Context, t models.NewTransaction) (bool, error)
	Plan(ctx context.Context, id string) (*models.Plan, error)
	PlanByExternalPrice(ctx context.Context, priceID string) (*models.Plan, error)
}

type handlerFunc func(ctx context.Context, event *stripelib.Event) (Outcome, error)

// Reconciler dispatches events to one handler per kind.
type Reconciler struct {
	store    Store
	now      func() time.Time
	handlers map[EventKind]handlerFunc
}

// New wires a Reconciler over st.
func New(st Store) *Reconciler {
	r := &Reconciler{store: st, now: time.Now}
	r.handlers = map[EventKind]handlerFunc{
		CheckoutCompleted:       r.checkoutCompleted,
		InvoicePaymentSucceeded: r.invoicePaymentSucceeded,
		InvoicePaymentFailed:    r.invoicePaymentFailed,
		SubscriptionUpdated:     r.subscriptionUpdated,
		SubscriptionDeleted:     r.subscriptionDeleted,
	}
	return r
}

// Apply processes one verified event. Unhandled event types are ignored.
// Errors other than ErrMalformedEvent are transient and the event should be
// redelivered.
func (r *Reconciler) Apply(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	kind, ok := KindFromStripe(event.Type)
	if !ok {
		log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("reconciler: ignoring unhandled event type")
		return OutcomeIgnored, nil
	}

	outcome, err := r.handlers[kind](ctx, event)
	label := string(outcome)
	switch {
	case errors.Is(err, ErrMalformedEvent):
		label = "malformed"
	case err != nil:
		label = "failed"
	}
	metrics.ReconcileOutcomes.WithLabelValues(kind.String(), label).Inc()

	if err != nil {
		return outcome, fmt.Errorf("reconciler: %s %s: %w", kind, event.ID, err)
	}
	log.Info().
		Str("event_id", event.ID).
		Str("kind", kind.String()).
		Str("outcome", label).
		Msg("reconciler: event applied")
	return outcome, nil
}

func decode(event *stripelib.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: missing data object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, event.Type, err)
	}
	return nil
}

func (r *Reconciler) eventTime(event *stripelib.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return r.now().UTC()
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	var session stripe.CheckoutSession
	if err := decode(event, &session); err != nil {
		return OutcomeNoop, err
	}
	if session.Subscription == "" {
		// One-off payments carry no subscription to activate.
		return OutcomeIgnored, nil
	}

	userID := session.UserID()
	if userID == "" {
		return OutcomeNoop, fmt.Errorf("%w: checkout session %s has no user reference", ErrMalformedEvent, session.ID)
	}
	plan, err := r.resolvePlan(ctx, session.Metadata)
	if err != nil {
		return OutcomeNoop, err
	}

	start := r.eventTime(event)
	if session.Created > 0 {
		start = time.Unix(session.Created, 0).UTC()
	}

	sub, created, err := r.store.ActivateSubscription(ctx, models.NewSubscription{
		UserID:                 userID,
		PlanID:                 plan.ID,
		ExternalSubscriptionID: session.Subscription.String(),
		ExternalCustomerID:     session.Customer.String(),
		AutoRenew:              true,
		PeriodStart:            start,
	})
	if err != nil {
		return OutcomeNoop, err
	}

	if session.Invoice != "" || session.PaymentIntent != "" {
		_, err := r.store.RecordTransaction(ctx, models.NewTransaction{
			UserID:            userID,
			SubscriptionID:    sub.ID,
			ExternalInvoiceID: session.Invoice.String(),
			ExternalPaymentID: session.PaymentIntent.String(),
			Amount:            session.AmountTotal,
			Currency:          session.Currency,
			Status:            session.PaymentStatus,
			Description:       fmt.Sprintf("Subscription to %s", plan.Name),
			CreatedAt:         start,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("event_id", event.ID).
				Str("subscription_id", session.Subscription.String()).
				Msg("reconciler: checkout transaction not recorded")
		}
	}

	if !created {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) resolvePlan(ctx context.Context, metadata map[string]string) (*models.Plan, error) {
	var (
		plan *models.Plan
		err  error
	)
	switch {
	case metadata["plan_id"] != "":
		plan, err = r.store.Plan(ctx, metadata["plan_id"])
	case metadata["price_id"] != "":
		plan, err = r.store.PlanByExternalPrice(ctx, metadata["price_id"])
	default:
		return nil, fmt.Errorf("%w: checkout session has no plan reference", ErrMalformedEvent)
	}
	if errors.Is(err, store.ErrPlanNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return plan, err
}

func (r *Reconciler) invoicePaymentSucceeded(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	var inv stripe.Invoice
	if err := decode(event, &inv); err != nil {
		return OutcomeNoop, err
	}
	extID := inv.SubscriptionID()
	if extID == "" {
		return OutcomeIgnored, nil
	}
	if inv.ID == "" {
		return OutcomeNoop, fmt.Errorf("%w: invoice without id", ErrMalformedEvent)
	}

	sub, err := r.store.SubscriptionByExternalID(ctx, extID)
	if err != nil {
		return OutcomeNoop, err
	}
	if sub == nil {
		log.Warn().Str("event_id", event.ID).Str("subscription_id", extID).Msg("reconciler: payment for unknown subscription")
		return OutcomeNoop, nil
	}

	createdAt := inv.CreatedAt()
	if createdAt.IsZero() {
		createdAt = r.eventTime(event)
	}
	recorded, err := r.store.RecordTransaction(ctx, models.NewTransaction{
		UserID:            sub.UserID,
		SubscriptionID:    sub.ID,
		ExternalInvoiceID: inv.ID,
		ExternalPaymentID: inv.PaymentID(),
		Amount:            inv.AmountPaid,
		Currency:          inv.Currency,
		Status:            "paid",
		Description:       invoiceDescription(inv),
		CreatedAt:         createdAt,
	})
	if err != nil {
		return OutcomeNoop, err
	}

	extended := false
	if start, end, ok := inv.ServicePeriod(); ok && !sub.Status.Terminal() {
		if extended, err = r.store.ExtendPeriod(ctx, extID, start, end); err != nil {
			return OutcomeNoop, err
		}
	}

	if !recorded && !extended {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func invoiceDescription(inv stripe.Invoice) string {
	if inv.Description != "" {
		return inv.Description
	}
	if inv.Number != "" {
		return "Invoice " + inv.Number
	}
	return "Invoice " + inv.ID
}

func (r *Reconciler) invoicePaymentFailed(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	var inv stripe.Invoice
	if err := decode(event, &inv); err != nil {
		return OutcomeNoop, err
	}
	extID := inv.SubscriptionID()
	if extID == "" {
		return OutcomeIgnored, nil
	}

	_, err := r.store.MarkPastDue(ctx, extID)
	if isStaleTarget(err) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return OutcomeNoop, err
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := decode(event, &sub); err != nil {
		return OutcomeNoop, err
	}
	if sub.ID == "" {
		return OutcomeNoop, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}
	return r.ApplyRemoteSubscription(ctx, sub.ID, sub.Status, sub.CancelAtPeriodEnd)
}

// ApplyRemoteSubscription brings the local row in line with the provider's
// status and renewal flag. A canceled remote status takes the downgrade path.
func (r *Reconciler) ApplyRemoteSubscription(ctx context.Context, externalID, remoteStatus string, cancelAtPeriodEnd bool) (Outcome, error) {
	status, ok := MapRemoteStatus(remoteStatus)
	if !ok {
		log.Info().Str("subscription_id", externalID).Str("status", remoteStatus).Msg("reconciler: remote status has no local mapping")
		return OutcomeIgnored, nil
	}
	if status.Terminal() {
		return r.downgrade(ctx, externalID)
	}

	_, err := r.store.ApplyRemoteState(ctx, externalID, status, !cancelAtPeriodEnd)
	if isStaleTarget(err) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return OutcomeNoop, err
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, event *stripelib.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := decode(event, &sub); err != nil {
		return OutcomeNoop, err
	}
	if sub.ID == "" {
		return OutcomeNoop, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}
	return r.downgrade(ctx, sub.ID)
}

func (r *Reconciler) downgrade(ctx context.Context, externalID string) (Outcome, error) {
	result, err := r.store.CancelAndDowngrade(ctx, externalID, r.now().UTC())
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return OutcomeNoop, err
	}
	if result.AlreadyCanceled {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

// isStaleTarget reports errors that mean the event refers to a row that is
// unknown or already terminal. Those events are acknowledged as no-ops.
func isStaleTarget(err error) bool {
	return errors.Is(err, store.ErrSubscriptionNotFound) || errors.Is(err, store.ErrSubscriptionTerminal)
}
