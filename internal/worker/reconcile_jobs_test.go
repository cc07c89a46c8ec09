package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/metrics"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/reconciler"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
)

type fakeRemote struct {
	sub stripe.RemoteSubscription
	err error
}

func (f *fakeRemote) RetrieveSubscription(ctx context.Context, id string) (stripe.RemoteSubscription, error) {
	return f.sub, f.err
}

type fakeLocal struct {
	sub *models.Subscription
	err error
}

func (f *fakeLocal) SubscriptionByExternalID(ctx context.Context, id string) (*models.Subscription, error) {
	return f.sub, f.err
}

type applyCall struct {
	extID             string
	status            string
	cancelAtPeriodEnd bool
}

type fakeApplier struct {
	calls   []applyCall
	outcome reconciler.Outcome
	err     error
}

func (f *fakeApplier) ApplyRemoteSubscription(ctx context.Context, extID, status string, cancelAtPeriodEnd bool) (reconciler.Outcome, error) {
	f.calls = append(f.calls, applyCall{extID, status, cancelAtPeriodEnd})
	return f.outcome, f.err
}

func localSub(status models.SubscriptionStatus, autoRenew bool) *models.Subscription {
	ext := "sub_1"
	return &models.Subscription{ID: 1, UserID: "u1", PlanID: "pro", ExternalSubscriptionID: &ext, Status: status, AutoRenew: autoRenew}
}

func runReconcile(t *testing.T, remote *fakeRemote, local *fakeLocal, applier *fakeApplier) error {
	t.Helper()
	h := reconcileHandler(remote, local, applier)
	return h(context.Background(), models.NewReconcileJob("sub_1", "test", models.JobPriorityHigh))
}

func TestReconcileInSyncDoesNothing(t *testing.T) {
	applier := &fakeApplier{}
	err := runReconcile(t,
		&fakeRemote{sub: stripe.RemoteSubscription{ID: "sub_1", Status: "active"}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		applier)
	require.NoError(t, err)
	assert.Empty(t, applier.calls)
}

func TestReconcileRepairsRenewalDrift(t *testing.T) {
	before := testutil.ToFloat64(metrics.DriftRepairsTotal.WithLabelValues("status"))
	applier := &fakeApplier{outcome: reconciler.OutcomeApplied}

	err := runReconcile(t,
		&fakeRemote{sub: stripe.RemoteSubscription{ID: "sub_1", Status: "active", CancelAtPeriodEnd: true}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		applier)

	require.NoError(t, err)
	require.Len(t, applier.calls, 1)
	assert.Equal(t, applyCall{"sub_1", "active", true}, applier.calls[0])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DriftRepairsTotal.WithLabelValues("status")))
}

func TestReconcileRepairsMissedCancellation(t *testing.T) {
	before := testutil.ToFloat64(metrics.DriftRepairsTotal.WithLabelValues("downgrade"))
	applier := &fakeApplier{outcome: reconciler.OutcomeApplied}

	err := runReconcile(t,
		&fakeRemote{sub: stripe.RemoteSubscription{ID: "sub_1", Status: "canceled"}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		applier)

	require.NoError(t, err)
	require.Len(t, applier.calls, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DriftRepairsTotal.WithLabelValues("downgrade")))
}

func TestReconcileNeverRevivesCanceledRow(t *testing.T) {
	applier := &fakeApplier{}
	err := runReconcile(t,
		&fakeRemote{sub: stripe.RemoteSubscription{ID: "sub_1", Status: "active"}},
		&fakeLocal{sub: localSub(models.SubscriptionCanceled, false)},
		applier)
	require.NoError(t, err)
	assert.Empty(t, applier.calls)
}

func TestReconcileUnknownLocalRow(t *testing.T) {
	remote := &fakeRemote{err: errors.New("should not be called")}
	applier := &fakeApplier{}
	require.NoError(t, runReconcile(t, remote, &fakeLocal{}, applier))
	assert.Empty(t, applier.calls)
}

func TestReconcileRemoteNotFoundIsNotRetried(t *testing.T) {
	err := runReconcile(t,
		&fakeRemote{err: &stripe.RemoteError{Op: "retrieve_subscription", StatusCode: http.StatusNotFound, Message: "No such subscription"}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		&fakeApplier{})
	assert.NoError(t, err)
}

func TestReconcileTransientErrorsRetry(t *testing.T) {
	err := runReconcile(t,
		&fakeRemote{err: &stripe.RemoteError{Op: "retrieve_subscription", Timeout: true, Err: context.DeadlineExceeded}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		&fakeApplier{})
	assert.Error(t, err)

	err = runReconcile(t,
		&fakeRemote{sub: stripe.RemoteSubscription{ID: "sub_1", Status: "past_due"}},
		&fakeLocal{sub: localSub(models.SubscriptionActive, true)},
		&fakeApplier{err: errors.New("db down")})
	assert.Error(t, err)

	err = runReconcile(t, &fakeRemote{}, &fakeLocal{err: errors.New("db down")}, &fakeApplier{})
	assert.Error(t, err)
}

func TestReconcileDropsMalformedPayload(t *testing.T) {
	h := reconcileHandler(&fakeRemote{}, &fakeLocal{}, &fakeApplier{})
	err := h(context.Background(), &models.Job{ID: 4, JobType: models.JobTypeReconcileSubscription, Payload: models.JSONB{}})
	assert.NoError(t, err)
}

func TestRegisterReconcileJobs(t *testing.T) {
	w := New(Config{}, newFakeQueue(), nil)
	RegisterReconcileJobs(w, &fakeRemote{}, &fakeLocal{}, &fakeApplier{})
	assert.Contains(t, w.handlers, models.JobTypeReconcileSubscription)
}
