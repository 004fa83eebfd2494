// Package jobs implements the server side of training job tracking:
// submission, the caller's active job, history, worker progress reports
// and the stale job reaper.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/internal/cache"
	"github.com/kiranshivaraju/lorastudio/internal/storage"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

const DefaultActiveRetention = 10 * time.Minute

// Service coordinates the job store, the active-job cache and image storage.
type Service struct {
	store     store.Store
	cache     cache.Cache
	images    storage.ImageStore
	policy    training.Policy
	retention time.Duration
	now       func() time.Time
}

type Option func(*Service)

func WithPolicy(p training.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithActiveRetention sets how long a finished job keeps being returned by Active.
func WithActiveRetention(d time.Duration) Option {
	return func(s *Service) { s.retention = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. images may be nil, in which case submitted
// image keys are only checked for ownership, not existence.
func NewService(st store.Store, c cache.Cache, images storage.ImageStore, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cache:     c,
		images:    images,
		policy:    training.DefaultPolicy(),
		retention: DefaultActiveRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates cfg and stores a new QUEUED job for userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, cfg models.TrainingConfig) (*models.Job, error) {
	if err := training.Validate(cfg, s.policy); err != nil {
		return nil, err
	}

	prefix := storage.UserPrefix(userID)
	for _, key := range cfg.ImageKeys {
		if !strings.HasPrefix(key, prefix) {
			return nil, &training.ValidationError{Field: "imageKeys", Reason: fmt.Sprintf("%q was not uploaded by this account", key)}
		}
		if s.images == nil {
			continue
		}
		ok, err := s.images.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check image: %w", err)
		}
		if !ok {
			return nil, &training.ValidationError{Field: "imageKeys", Reason: fmt.Sprintf("%q has not been uploaded", key)}
		}
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:           models.JobID(uuid.NewString()),
		UserID:       userID,
		Title:        strings.TrimSpace(cfg.Title),
		Description:  cfg.Description,
		TriggerWord:  cfg.TriggerWord,
		Status:       models.JobStatusQueued,
		TotalSteps:   cfg.Epochs,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		LoraRank:     cfg.LoraRank,
		BaseModel:    cfg.BaseModel,
		IsPublic:     cfg.IsPublic,
		ImageKeys:    cfg.ImageKeys,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.remember(ctx, job)
	slog.Info("training job created", "job_id", job.ID, "user_id", userID, "images", len(job.ImageKeys))
	return job, nil
}

// Active returns the caller's current job, or nil when there is none. A job
// is current while it runs and for the retention window after it finishes.
func (s *Service) Active(ctx context.Context, userID uuid.UUID) (*models.Job, error) {
	job, found, err := s.cache.GetActiveJob(ctx, userID)
	if err != nil {
		slog.Warn("active job cache read failed", "user_id", userID, "error", err)
	}
	// Only running snapshots are served from the cache. A terminal one may
	// predate a newer job.
	if found && !job.Status.Terminal() {
		return job, nil
	}

	job, err = s.store.GetLatestJob(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.visible(job) {
		return nil, nil
	}
	s.remember(ctx, job)
	return job, nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID, id models.JobID) (*models.Job, error) {
	return s.store.GetJob(ctx, id, userID)
}

func (s *Service) List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, &training.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	return s.store.ListJobs(ctx, filter)
}

// ReportProgress applies a worker status report to job id.
func (s *Service) ReportProgress(ctx context.Context, id models.JobID, p models.JobProgress) (*models.Job, error) {
	if !p.Status.Valid() {
		return nil, &training.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}

	var opts []store.JobUpdateOption
	if p.CurrentStep != nil {
		if *p.CurrentStep < 0 {
			return nil, &training.ValidationError{Field: "currentStep", Reason: "must not be negative"}
		}
		opts = append(opts, store.WithCurrentStep(*p.CurrentStep))
	}
	if p.ErrorMessage != "" {
		opts = append(opts, store.WithErrorMessage(p.ErrorMessage))
	}
	if p.PreviewURL != "" {
		opts = append(opts, store.WithPreviewURL(p.PreviewURL))
	}

	job, err := s.store.UpdateJobProgress(ctx, id, p.Status, opts...)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, job)
	if job.Status.Terminal() {
		slog.Info("training job finished", "job_id", job.ID, "status", job.Status)
	}
	return job, nil
}

func (s *Service) visible(job *models.Job) bool {
	if !job.Status.Terminal() {
		return true
	}
	return s.now().Sub(finishedAt(job)) < s.retention
}

// remember refreshes the cached snapshot. A failed write drops the old
// snapshot so reads fall through to the store.
func (s *Service) remember(ctx context.Context, job *models.Job) {
	ttl := s.retention
	if job.Status.Terminal() {
		ttl = s.retention - s.now().Sub(finishedAt(job))
		if ttl <= 0 {
			return
		}
	}
	err := s.cache.SetActiveJob(ctx, job.UserID, job, ttl)
	if err == nil {
		return
	}
	slog.Warn("active job cache write failed", "job_id", job.ID, "error", err)
	if err := s.cache.DeleteActiveJob(ctx, job.UserID); err != nil {
		slog.Warn("active job cache delete failed", "user_id", job.UserID, "error", err)
	}
}

func finishedAt(job *models.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.UpdatedAt
}
