package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

const (
	sweepBatchSize   = 500
	sweepConcurrency = 4
	sweepTimeout     = 5 * time.Minute
)

// PaidSubscriptionLister pages through live rows bound to the provider in id
// order.
type PaidSubscriptionLister interface {
	ListPaidCurrentSubscriptions(ctx context.Context, afterID int64, limit int) ([]models.Subscription, error)
}

// Enqueuer accepts jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) (bool, error)
}

// Sweeper periodically queues a low priority reconcile job for every paid
// subscription, catching drift that no webhook reported.
type Sweeper struct {
	lister PaidSubscriptionLister
	queue  Enqueuer
	cron   *cron.Cron
}

// NewSweeper schedules RunOnce on a standard five-field cron spec.
func NewSweeper(schedule string, lister PaidSubscriptionLister, queue Enqueuer) (*Sweeper, error) {
	s := &Sweeper{lister: lister, queue: queue, cron: cron.New()}
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		n, err := s.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Int("enqueued", n).Msg("drift sweep failed")
			return
		}
		log.Info().Int("enqueued", n).Msg("drift sweep completed")
	})
	if err != nil {
		return nil, fmt.Errorf("worker: invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep or ctx, whichever
// comes first.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce walks every paid subscription page by page and enqueues one
// reconcile job per row. It returns how many jobs were newly queued.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	var (
		afterID  int64
		enqueued int
	)
	for {
		subs, err := s.lister.ListPaidCurrentSubscriptions(ctx, afterID, sweepBatchSize)
		if err != nil {
			return enqueued, fmt.Errorf("worker: list paid subscriptions after %d: %w", afterID, err)
		}

		n, err := s.enqueueBatch(ctx, subs)
		enqueued += n
		if err != nil {
			return enqueued, err
		}

		if len(subs) < sweepBatchSize {
			return enqueued, nil
		}
		afterID = subs[len(subs)-1].ID
	}
}

func (s *Sweeper) enqueueBatch(ctx context.Context, subs []models.Subscription) (int, error) {
	results := make([]bool, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, sub := range subs {
		if !sub.IsPaid() {
			continue
		}
		extID := *sub.ExternalSubscriptionID
		g.Go(func() error {
			ok, err := s.queue.Enqueue(gctx, models.NewReconcileJob(extID, "drift sweep", models.JobPriorityLow))
			if err != nil {
				return fmt.Errorf("enqueue reconcile %s: %w", extID, err)
			}
			results[i] = ok
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n, err
}
