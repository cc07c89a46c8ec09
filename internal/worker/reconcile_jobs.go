package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/reconciler"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

// RemoteSubscriptions reads the provider's view of a subscription.
type RemoteSubscriptions interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (stripe.RemoteSubscription, error)
}

// LocalSubscriptions reads the local row bound to a provider subscription.
type LocalSubscriptions interface {
	SubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
}

// RemoteApplier writes the provider's view onto the local row.
type RemoteApplier interface {
	ApplyRemoteSubscription(ctx context.Context, externalID, remoteStatus string, cancelAtPeriodEnd bool) (reconciler.Outcome, error)
}

// RegisterReconcileJobs registers the drift repair handler.
func RegisterReconcileJobs(w *Worker, remote RemoteSubscriptions, local LocalSubscriptions, applier RemoteApplier) {
	w.RegisterHandler(models.JobTypeReconcileSubscription, reconcileHandler(remote, local, applier))
}

func reconcileHandler(remote RemoteSubscriptions, local LocalSubscriptions, applier RemoteApplier) Handler {
	return func(ctx context.Context, job *models.Job) error {
		extID, err := job.ExternalSubscriptionID()
		if err != nil {
			// Retrying cannot fix the payload.
			log.Error().Err(err).Int64("job_id", job.ID).Msg("reconcile: dropping job")
			return nil
		}
		logger := log.With().Int64("job_id", job.ID).Str("subscription_id", extID).Logger()

		sub, err := local.SubscriptionByExternalID(ctx, extID)
		if err != nil {
			return fmt.Errorf("reconcile %s: load local: %w", extID, err)
		}
		if sub == nil {
			logger.Info().Msg("reconcile: no local row, nothing to repair")
			return nil
		}

		rs, err := remote.RetrieveSubscription(ctx, extID)
		var remoteErr *stripe.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			logger.Warn().Bool("alert", true).Msg("reconcile: provider does not know this subscription")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reconcile %s: retrieve remote: %w", extID, err)
		}

		want, ok := reconciler.MapRemoteStatus(rs.Status)
		if !ok {
			logger.Info().Str("remote_status", rs.Status).Msg("reconcile: remote status has no local mapping")
			return nil
		}

		if sub.Status.Terminal() {
			if !want.Terminal() {
				// Canceled rows are never revived; a human has to look.
				logger.Error().Bool("alert", true).Str("remote_status", rs.Status).
					Msg("reconcile: provider subscription is live but local row is canceled")
			}
			return nil
		}

		if want == sub.Status && sub.AutoRenew == !rs.CancelAtPeriodEnd {
			logger.Debug().Msg("reconcile: in sync")
			return nil
		}

		outcome, err := applier.ApplyRemoteSubscription(ctx, extID, rs.Status, rs.CancelAtPeriodEnd)
		if err != nil {
			return fmt.Errorf("reconcile %s: apply: %w", extID, err)
		}
		if outcome == reconciler.OutcomeApplied {
			action := "status"
			if want.Terminal() {
				action = "downgrade"
			}
			metrics.DriftRepairsTotal.WithLabelValues(action).Inc()
			logger.Warn().
				Str("local_status", string(sub.Status)).
				Str("remote_status", rs.Status).
				Bool("cancel_at_period_end", rs.CancelAtPeriodEnd).
				Str("action", action).
				Msg("reconcile: repaired local drift")
		}
		return nil
	}
}
