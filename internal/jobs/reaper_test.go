package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_SweepFailsStaleJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := &models.Job{
		ID:        models.JobID(uuid.NewString()),
		UserID:    f.user,
		Status:    models.JobStatusTraining,
		CreatedAt: f.clock.now().Add(-5 * time.Hour),
		UpdatedAt: f.clock.now().Add(-4 * time.Hour),
	}
	fresh := &models.Job{
		ID:        models.JobID(uuid.NewString()),
		UserID:    uuid.New(),
		Status:    models.JobStatusQueued,
		CreatedAt: f.clock.now().Add(-time.Hour),
		UpdatedAt: f.clock.now().Add(-time.Hour),
	}
	f.store.put(stale)
	f.store.put(fresh)

	r := NewReaper(f.store, f.svc, time.Minute, 3*time.Hour)
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetJob(ctx, stale.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, StalledMessage, *got.ErrorMessage)

	active, err := f.svc.Active(ctx, f.user)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.JobStatusFailed, active.Status)

	got, err = f.store.GetJobByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
}

func TestReaper_StartStop(t *testing.T) {
	f := newFixture(t)
	r := NewReaper(f.store, f.svc, 10*time.Millisecond, time.Hour)

	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
