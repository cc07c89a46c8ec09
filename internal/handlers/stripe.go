package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/PortNumber53/design-feedback/backend/internal/eventcache"
	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/reconciler"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// PlanLister lists the plan catalog.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

// EventReconciler applies verified provider events to local state.
type EventReconciler interface {
	Apply(ctx context.Context, event *stripelib.Event) (reconciler.Outcome, error)
}

type webhookReceivedResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// StripeHandler holds dependencies for provider-facing handlers
type StripeHandler struct {
	Plans         PlanLister
	Reconciler    EventReconciler
	Processed     eventcache.Marker
	WebhookSecret string
}

// NewStripeHandler creates a new StripeHandler. A nil marker disables the
// processed-event fast path.
func NewStripeHandler(plans PlanLister, rec EventReconciler, processed eventcache.Marker, webhookSecret string) *StripeHandler {
	if processed == nil {
		processed = eventcache.Noop{}
	}
	return &StripeHandler{
		Plans:         plans,
		Reconciler:    rec,
		Processed:     processed,
		WebhookSecret: webhookSecret,
	}
}

// RegisterRoutes registers the catalog and webhook routes
func (h *StripeHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/plans", h.ListPlans())
	router.HandleFunc("/api/webhooks/stripe", h.HandleWebhook())
}

// ListPlans returns the plan catalog
func (h *StripeHandler) ListPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := h.Plans.ListPlans(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("ListPlans: failed to list plans")
			http.Error(w, "failed to retrieve plans", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
	}
}

// HandleWebhook verifies the provider signature and hands the event to the
// reconciler. Nothing is read or written before the signature checks out.
func (h *StripeHandler) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		eventType := "unknown"
		status := http.StatusOK
		defer func() {
			metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
			metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		}()

		if r.Method != http.MethodPost {
			status = http.StatusMethodNotAllowed
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, status, errorResponse{Error: "method not allowed"})
			return
		}
		if strings.TrimSpace(h.WebhookSecret) == "" {
			status = http.StatusServiceUnavailable
			writeJSON(w, status, errorResponse{Error: "webhook secret not configured"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "failed to read request body"})
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if strings.TrimSpace(sigHeader) == "" {
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "missing Stripe signature"})
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.WebhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			log.Warn().Err(err).Msg("[webhook] signature verification failed")
			status = http.StatusBadRequest
			writeJSON(w, status, errorResponse{Error: "invalid Stripe signature"})
			return
		}
		eventType = string(event.Type)

		if h.Processed.Seen(r.Context(), event.ID) {
			log.Debug().Str("event_id", event.ID).Str("type", eventType).Msg("[webhook] duplicate delivery acknowledged")
			writeJSON(w, status, webhookReceivedResponse{Received: true, Duplicate: true})
			return
		}

		outcome, err := h.Reconciler.Apply(r.Context(), &event)
		switch {
		case errors.Is(err, reconciler.ErrMalformedEvent):
			// Redelivery cannot fix a malformed payload.
			log.Warn().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("[webhook] malformed event acknowledged")
		case err != nil:
			log.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("[webhook] processing failed")
			status = http.StatusInternalServerError
			writeJSON(w, status, errorResponse{Error: "processing failed"})
			return
		default:
			log.Debug().Str("event_id", event.ID).Str("outcome", string(outcome)).Msg("[webhook] processed")
		}

		h.Processed.Mark(r.Context(), event.ID)
		writeJSON(w, status, webhookReceivedResponse{Received: true})
	}
}
