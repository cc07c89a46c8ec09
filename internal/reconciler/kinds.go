package reconciler

import (
	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// EventKind is the closed set of provider events that change local state.
type EventKind int

const (
	CheckoutCompleted EventKind = iota + 1
	InvoicePaymentSucceeded
	InvoicePaymentFailed
	SubscriptionUpdated
	SubscriptionDeleted
)

func (k EventKind) String() string {
	switch k {
	case CheckoutCompleted:
		return "checkout_completed"
	case InvoicePaymentSucceeded:
		return "invoice_payment_succeeded"
	case InvoicePaymentFailed:
		return "invoice_payment_failed"
	case SubscriptionUpdated:
		return "subscription_updated"
	case SubscriptionDeleted:
		return "subscription_deleted"
	}
	return "unknown"
}

// KindFromStripe maps a provider event type. ok is false for types the
// reconciler does not act on.
func KindFromStripe(t stripelib.EventType) (EventKind, bool) {
	switch t {
	case "checkout.session.completed":
		return CheckoutCompleted, true
	case "invoice.payment_succeeded", "invoice.paid":
		return InvoicePaymentSucceeded, true
	case "invoice.payment_failed":
		return InvoicePaymentFailed, true
	case "customer.subscription.updated":
		return SubscriptionUpdated, true
	case "customer.subscription.deleted":
		return SubscriptionDeleted, true
	}
	return 0, false
}

// MapRemoteStatus translates a provider subscription status into the local
// status vocabulary. A canceled result means the downgrade path applies.
// ok is false for statuses with no local meaning, such as paused.
func MapRemoteStatus(status string) (models.SubscriptionStatus, bool) {
	switch status {
	case "active", "trialing":
		return models.SubscriptionActive, true
	case "past_due", "unpaid", "incomplete":
		return models.SubscriptionPastDue, true
	case "canceled", "incomplete_expired":
		return models.SubscriptionCanceled, true
	}
	return "", false
}
