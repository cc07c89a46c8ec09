package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// fakeLister serves subs in id order, honoring the keyset cursor.
type fakeLister struct {
	subs  []models.Subscription
	err   error
	calls []int64
}

func (f *fakeLister) ListPaidCurrentSubscriptions(ctx context.Context, afterID int64, limit int) ([]models.Subscription, error) {
	f.calls = append(f.calls, afterID)
	if f.err != nil {
		return nil, f.err
	}
	var page []models.Subscription
	for _, sub := range f.subs {
		if sub.ID > afterID && len(page) < limit {
			page = append(page, sub)
		}
	}
	return page, nil
}

var nextSubID int64

func paid(ext string) models.Subscription {
	nextSubID++
	return models.Subscription{ID: nextSubID, UserID: "u-" + ext, PlanID: "pro", ExternalSubscriptionID: &ext, Status: models.SubscriptionActive}
}

func TestSweepEnqueuesLowPriorityJobs(t *testing.T) {
	q := newFakeQueue()
	lister := &fakeLister{subs: []models.Subscription{paid("sub_a"), paid("sub_b"), {ID: 1 << 40, UserID: "free-user", PlanID: "free"}}}
	s, err := NewSweeper("@every 1h", lister, q)
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, q.pending, 2)
	for _, job := range q.pending {
		assert.Equal(t, models.JobTypeReconcileSubscription, job.JobType)
		assert.Equal(t, models.JobPriorityLow, job.Priority)
	}

	n, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "already queued subscriptions are not queued twice")
}

func TestSweepPagesPastFirstBatch(t *testing.T) {
	q := newFakeQueue()
	lister := &fakeLister{}
	total := sweepBatchSize*2 + 7
	for i := 0; i < total; i++ {
		lister.subs = append(lister.subs, paid(fmt.Sprintf("sub_page_%d", i)))
	}
	s, err := NewSweeper("@every 1h", lister, q)
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Len(t, q.pending, total)

	require.Len(t, lister.calls, 3)
	assert.Zero(t, lister.calls[0])
	assert.Equal(t, lister.subs[sweepBatchSize-1].ID, lister.calls[1])
	assert.Equal(t, lister.subs[2*sweepBatchSize-1].ID, lister.calls[2])
}

func TestSweepListError(t *testing.T) {
	s, err := NewSweeper("*/15 * * * *", &fakeLister{err: errors.New("db down")}, newFakeQueue())
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweepInvalidSchedule(t *testing.T) {
	_, err := NewSweeper("not a schedule", &fakeLister{}, newFakeQueue())
	assert.Error(t, err)
}

func TestSweepStartStop(t *testing.T) {
	s, err := NewSweeper("@every 1h", &fakeLister{}, newFakeQueue())
	require.NoError(t, err)
	s.Start()
	s.Stop(context.Background())
}
