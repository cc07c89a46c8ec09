package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/usage"
)

// Decision is the answer to a gate question. A denial is not an error.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	UpgradeRequired bool   `json:"upgradeRequired"`
}

const reasonUsageUnavailable = "usage unavailable"

// Gate answers "may this user do X now" questions.
type Gate struct {
	resolver *Resolver
	counter  usage.Counter
	now      func() time.Time
}

// NewGate wires a Gate.
func NewGate(resolver *Resolver, counter usage.Counter) *Gate {
	return &Gate{resolver: resolver, counter: counter, now: time.Now}
}

// CanCreateProject checks the project limit against live projects.
func (g *Gate) CanCreateProject(ctx context.Context, userID string) Decision {
	ent := g.resolver.Resolve(ctx, userID, g.now())
	if ent.MaxProjects == models.Unlimited {
		return Decision{Allowed: true}
	}

	count, err := g.counter.CountProjects(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("entitlements: count projects failed; denying")
		return Decision{Reason: reasonUsageUnavailable}
	}
	return limitDecision("project", count, ent.MaxProjects)
}

// CanCreateFeedbackQuery checks the per-period query limit.
func (g *Gate) CanCreateFeedbackQuery(ctx context.Context, userID string) Decision {
	now := g.now()
	ent := g.resolver.Resolve(ctx, userID, now)
	if ent.MaxQueries == models.Unlimited {
		return Decision{Allowed: true}
	}

	count, err := g.counter.CountQueriesSince(ctx, userID, usage.PeriodStart(now))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("entitlements: count queries failed; denying")
		return Decision{Reason: reasonUsageUnavailable}
	}
	return limitDecision("feedback query", count, ent.MaxQueries)
}

// CanUseFeature checks a feature key. Limit keys are answered the same way
// as the matching CanCreate call.
func (g *Gate) CanUseFeature(ctx context.Context, userID, feature string) Decision {
	f, err := models.ParseFeature(feature)
	if err != nil {
		return Decision{Reason: err.Error()}
	}

	switch f {
	case models.FeatureMaxProjects:
		return g.CanCreateProject(ctx, userID)
	case models.FeatureMaxQueries:
		return g.CanCreateFeedbackQuery(ctx, userID)
	}

	ent := g.resolver.Resolve(ctx, userID, g.now())
	if ent.Enabled(f) {
		return Decision{Allowed: true}
	}
	return Decision{
		Reason:          fmt.Sprintf("%s is not included in the current plan", f),
		UpgradeRequired: true,
	}
}

func limitDecision(what string, count, limit int) Decision {
	if count < limit {
		return Decision{Allowed: true}
	}
	return Decision{
		Reason:          fmt.Sprintf("%s limit reached (%d of %d)", what, count, limit),
		UpgradeRequired: true,
	}
}
