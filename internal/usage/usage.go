// Package usage counts a user's consumption against their resolved limits.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// Counter reads raw usage counts.
type Counter interface {
	CountProjects(ctx context.Context, userID string) (int, error)
	CountQueriesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Limits resolves the entitlements usage is measured against.
type Limits interface {
	Resolve(ctx context.Context, userID string, now time.Time) models.Entitlements
}

// Usage is a user's consumption and remaining allowance at a point in time.
type Usage struct {
	CurrentProjects          int       `json:"currentProjects"`
	CurrentQueriesThisPeriod int       `json:"currentQueriesThisPeriod"`
	RemainingProjects        Remaining `json:"remainingProjects"`
	RemainingQueries         Remaining `json:"remainingQueries"`
	PeriodStart              time.Time `json:"periodStart"`
}

// Accountant combines counts with resolved limits.
type Accountant struct {
	counter Counter
	limits  Limits
}

// NewAccountant wires an Accountant.
func NewAccountant(counter Counter, limits Limits) *Accountant {
	return &Accountant{counter: counter, limits: limits}
}

// PeriodStart returns the start of the query-counting period containing now:
// the first of the calendar month at midnight in now's location.
func PeriodStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// Usage reports current counts and what remains under the user's limits.
func (a *Accountant) Usage(ctx context.Context, userID string, now time.Time) (Usage, error) {
	periodStart := PeriodStart(now)

	var projects, queries int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.counter.CountProjects(gctx, userID)
		if err != nil {
			return fmt.Errorf("usage: count projects: %w", err)
		}
		projects = n
		return nil
	})
	g.Go(func() error {
		n, err := a.counter.CountQueriesSince(gctx, userID, periodStart)
		if err != nil {
			return fmt.Errorf("usage: count queries: %w", err)
		}
		queries = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Usage{}, err
	}

	ent := a.limits.Resolve(ctx, userID, now)
	return Usage{
		CurrentProjects:          projects,
		CurrentQueriesThisPeriod: queries,
		RemainingProjects:        NewRemaining(ent.MaxProjects, projects),
		RemainingQueries:         NewRemaining(ent.MaxQueries, queries),
		PeriodStart:              periodStart,
	}, nil
}

const unlimitedLabel = "unlimited"

// Remaining is an allowance that is either a non-negative count or unlimited.
// The unlimited sentinel never takes part in arithmetic.
type Remaining struct {
	n         int
	unlimited bool
}

// NewRemaining computes max(0, limit-current), or unlimited when limit is
// the Unlimited sentinel.
func NewRemaining(limit, current int) Remaining {
	if limit == models.Unlimited {
		return Remaining{unlimited: true}
	}
	if current >= limit {
		return Remaining{}
	}
	return Remaining{n: limit - current}
}

// UnlimitedRemaining is the allowance of an uncapped limit.
func UnlimitedRemaining() Remaining {
	return Remaining{unlimited: true}
}

func (r Remaining) IsUnlimited() bool {
	return r.unlimited
}

// Count is the remaining allowance. It is meaningless when IsUnlimited.
func (r Remaining) Count() int {
	return r.n
}

func (r Remaining) String() string {
	if r.unlimited {
		return unlimitedLabel
	}
	return fmt.Sprintf("%d", r.n)
}

func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.unlimited {
		return json.Marshal(unlimitedLabel)
	}
	return json.Marshal(r.n)
}

func (r *Remaining) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		if label != unlimitedLabel {
			return fmt.Errorf("usage: invalid remaining value %q", label)
		}
		*r = Remaining{unlimited: true}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("usage: invalid remaining value: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("usage: negative remaining value %d", n)
	}
	*r = Remaining{n: n}
	return nil
}
