package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/billing"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

// BillingService defines the user-initiated billing commands.
type BillingService interface {
	CancelImmediately(ctx context.Context, userID string) (models.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, userID string) (models.Subscription, error)
	RecentInvoices(ctx context.Context, userID string, limit int) ([]stripe.InvoiceSummary, error)
	Transactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	StartFree(ctx context.Context, userID string) (models.Subscription, bool, error)
}

const (
	cancelModeImmediately = "immediately"
	cancelModePeriodEnd   = "period_end"
)

type cancelPayload struct {
	Mode string `json:"mode"`
}

// CancelSubscription cancels {userID}'s paid subscription. The provider is
// asked first; a provider failure leaves local state untouched.
func CancelSubscription(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			http.Error(w, "user id is required", http.StatusBadRequest)
			return
		}

		var payload cancelPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		var (
			sub models.Subscription
			err error
		)
		switch payload.Mode {
		case cancelModeImmediately:
			sub, err = svc.CancelImmediately(r.Context(), userID)
		case cancelModePeriodEnd:
			sub, err = svc.CancelAtPeriodEnd(r.Context(), userID)
		default:
			http.Error(w, `mode must be "immediately" or "period_end"`, http.StatusBadRequest)
			return
		}
		if err != nil {
			writeBillingError(w, userID, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"mode":         payload.Mode,
			"subscription": sub,
		})
	}
}

// StartFreeSubscription gives {userID} a free-tier row if they have none.
func StartFreeSubscription(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			http.Error(w, "user id is required", http.StatusBadRequest)
			return
		}

		sub, created, err := svc.StartFree(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("StartFreeSubscription: failed")
			http.Error(w, "failed to create subscription", http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, sub)
	}
}

// Invoices lists recent provider invoices for {userID}.
func Invoices(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		invoices, err := svc.RecentInvoices(r.Context(), userID, limitParam(r, 10, 100))
		if err != nil {
			writeBillingError(w, userID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices, "count": len(invoices)})
	}
}

// Transactions lists {userID}'s local payment ledger.
func Transactions(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		txns, err := svc.Transactions(r.Context(), userID, limitParam(r, 50, 200))
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Transactions: failed to list")
			http.Error(w, "failed to retrieve transactions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txns, "count": len(txns)})
	}
}

func writeBillingError(w http.ResponseWriter, userID string, err error) {
	var (
		remoteErr *stripe.RemoteError
		driftErr  *billing.LocalStateDriftError
	)
	switch {
	case errors.Is(err, billing.ErrNoPaidSubscription):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no_paid_subscription"})
	case errors.As(err, &driftErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "local_state_drift",
			Message: "the payment provider applied the change but it could not be saved; it will be repaired automatically",
		})
	case errors.As(err, &remoteErr) && remoteErr.Timeout:
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "provider_timeout", Message: remoteErr.Message})
	case errors.As(err, &remoteErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "provider_error", Message: remoteErr.Message})
	default:
		log.Error().Err(err).Str("user_id", userID).Msg("billing request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
