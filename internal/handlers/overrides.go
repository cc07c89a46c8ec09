package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// OverrideStore persists per-user feature overrides.
type OverrideStore interface {
	UpsertOverride(ctx context.Context, o models.FeatureOverride) error
	DeleteOverride(ctx context.Context, userID string, feature models.Feature) (bool, error)
}

type overridePayload struct {
	Value     json.RawMessage `json:"value"`
	Reason    string          `json:"reason"`
	ExpiresAt *time.Time      `json:"expiresAt"`
}

// PutOverride creates or replaces the override for {userID}/{feature}.
func PutOverride(st OverrideStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		feature, err := models.ParseFeature(chi.URLParam(r, "feature"))
		if userID == "" || err != nil {
			http.Error(w, "valid user id and feature are required", http.StatusBadRequest)
			return
		}

		var payload overridePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		if len(payload.Value) == 0 {
			http.Error(w, "value is required", http.StatusBadRequest)
			return
		}
		// Reject values the resolver would ignore.
		check := models.FreeTierDefaults()
		if err := check.Apply(feature, payload.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload.ExpiresAt != nil && !payload.ExpiresAt.After(time.Now()) {
			http.Error(w, "expiresAt must be in the future", http.StatusBadRequest)
			return
		}

		o := models.FeatureOverride{
			UserID:    userID,
			Feature:   feature,
			Value:     payload.Value,
			Reason:    payload.Reason,
			ExpiresAt: payload.ExpiresAt,
		}
		if err := st.UpsertOverride(r.Context(), o); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("feature", string(feature)).Msg("PutOverride: failed to save")
			http.Error(w, "failed to save override", http.StatusInternalServerError)
			return
		}

		log.Info().
			Str("user_id", userID).
			Str("feature", string(feature)).
			Str("reason", payload.Reason).
			Msg("override saved")
		writeJSON(w, http.StatusOK, o)
	}
}

// DeleteOverride removes the override for {userID}/{feature}.
func DeleteOverride(st OverrideStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		feature, err := models.ParseFeature(chi.URLParam(r, "feature"))
		if userID == "" || err != nil {
			http.Error(w, "valid user id and feature are required", http.StatusBadRequest)
			return
		}

		deleted, err := st.DeleteOverride(r.Context(), userID, feature)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("DeleteOverride: failed")
			http.Error(w, "failed to delete override", http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "override not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
