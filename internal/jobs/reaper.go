package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// StalledMessage is recorded on jobs the reaper fails.
const StalledMessage = "Training stalled"

// Reaper periodically fails unfinished jobs that stopped reporting progress.
type Reaper struct {
	store      store.Store
	service    *Service
	interval   time.Duration
	staleAfter time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewReaper(st store.Store, svc *Service, interval, staleAfter time.Duration) *Reaper {
	return &Reaper{
		store:      st,
		service:    svc,
		interval:   interval,
		staleAfter: staleAfter,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the reaper loop in the background.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.loop()
	slog.Info("stale job reaper started", "interval", r.interval, "stale_after", r.staleAfter)
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (r *Reaper) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	slog.Info("stale job reaper stopped")
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if _, err := r.Sweep(ctx); err != nil {
				slog.Error("stale job sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// Sweep fails every job without progress for staleAfter and returns how many it reaped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.service.now().Add(-r.staleAfter)
	stale, err := r.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range stale {
		_, err := r.service.ReportProgress(ctx, job.ID, models.JobProgress{
			Status:       models.JobStatusFailed,
			ErrorMessage: StalledMessage,
		})
		switch {
		case err == nil:
			reaped++
			slog.Warn("stale training job failed", "job_id", job.ID, "last_status", job.Status, "updated_at", job.UpdatedAt)
		case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
			// finished or vanished since the listing
		default:
			return reaped, err
		}
	}
	return reaped, nil
}
