package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReconcileJob(t *testing.T) {
	job := NewReconcileJob("sub_1", "drift sweep", JobPriorityLow)

	require.NoError(t, job.IsValid())
	assert.Equal(t, JobTypeReconcileSubscription, job.JobType)
	assert.Equal(t, "sub_1", job.DedupeKey)

	id, err := job.ExternalSubscriptionID()
	require.NoError(t, err)
	assert.Equal(t, "sub_1", id)
}

func TestJobExternalSubscriptionIDMissing(t *testing.T) {
	job := &Job{ID: 7, Payload: JSONB{"external_subscription_id": 42}}

	_, err := job.ExternalSubscriptionID()
	assert.Error(t, err)
}

func TestJobIsValid(t *testing.T) {
	assert.Error(t, (&Job{MaxAttempts: 1}).IsValid())
	assert.Error(t, (&Job{JobType: "x"}).IsValid())

	job := &Job{JobType: "x", MaxAttempts: 1}
	require.NoError(t, job.IsValid())
	assert.Equal(t, JobPriorityNormal, job.Priority)
}

func TestJSONBScan(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"a":"b"}`)))
	assert.Equal(t, "b", j["a"])

	require.NoError(t, j.Scan(`{"c":1}`))
	assert.Equal(t, float64(1), j["c"])

	require.NoError(t, j.Scan(nil))
	assert.Empty(t, j)

	assert.Error(t, j.Scan(42))

	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), v)
}
