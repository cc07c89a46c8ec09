package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// JobStatsReader reads queue statistics.
type JobStatsReader interface {
	GetStats(ctx context.Context) (*models.JobStats, error)
}

// GetJobStats returns statistics about the job queue
func GetJobStats(jobStore JobStatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := jobStore.GetStats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("GetJobStats: failed to get stats")
			http.Error(w, "failed to retrieve job statistics", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
