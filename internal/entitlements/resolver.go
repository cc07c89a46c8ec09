// Package entitlements resolves what a user may do from their plan and
// per-user overrides, and answers gate questions on top of that.
package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
)

// Subscriptions reads the subscription a user is currently entitled by.
type Subscriptions interface {
	ActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// Plans reads catalog entries.
type Plans interface {
	Plan(ctx context.Context, id string) (*models.Plan, error)
}

// Overrides reads non-expired per-user overrides.
type Overrides interface {
	ActiveOverrides(ctx context.Context, userID string, now time.Time) ([]models.FeatureOverride, error)
}

// Resolver computes effective entitlements. It holds no state of its own.
type Resolver struct {
	subs      Subscriptions
	plans     Plans
	overrides Overrides
}

// NewResolver wires a Resolver.
func NewResolver(subs Subscriptions, plans Plans, overrides Overrides) *Resolver {
	return &Resolver{subs: subs, plans: plans, overrides: overrides}
}

// Resolve returns the user's entitlements at now. It never fails: lookup
// errors are logged and the best available value is used, down to the
// built-in free tier.
func (r *Resolver) Resolve(ctx context.Context, userID string, now time.Time) models.Entitlements {
	ent := r.base(ctx, userID)

	overrides, err := r.overrides.ActiveOverrides(ctx, userID, now)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("entitlements: load overrides failed; using plan values")
		return ent
	}

	for _, o := range overrides {
		if !o.ActiveAt(now) {
			continue
		}
		if err := ent.Apply(o.Feature, o.Value); err != nil {
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("feature", string(o.Feature)).
				Msg("entitlements: ignoring invalid override")
		}
	}
	return ent
}

func (r *Resolver) base(ctx context.Context, userID string) models.Entitlements {
	sub, err := r.subs.ActiveSubscription(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("entitlements: load subscription failed; using free tier")
		return models.FreeTierDefaults()
	}
	if sub == nil {
		return models.FreeTierDefaults()
	}

	plan, err := r.plans.Plan(ctx, sub.PlanID)
	if err != nil {
		evt := log.Error()
		if errors.Is(err, store.ErrPlanNotFound) {
			evt = log.Warn()
		}
		evt.Err(err).
			Str("user_id", userID).
			Str("plan_id", sub.PlanID).
			Msg("entitlements: load plan failed; using free tier")
		return models.FreeTierDefaults()
	}
	return plan.Entitlements()
}
