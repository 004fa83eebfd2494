package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrActiveJobExists is returned when a user already has an unfinished job.
var ErrActiveJobExists = errors.New("user already has an active training job")

// ErrInvalidTransition is returned when a progress report would move a job
// to a status it cannot reach from its current one.
var ErrInvalidTransition = errors.New("invalid job status transition")

// DefaultUserID is the account seeded by the initial migration.
var DefaultUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id models.JobID, userID uuid.UUID) (*models.Job, error)
	GetJobByID(ctx context.Context, id models.JobID) (*models.Job, error)
	GetLatestJob(ctx context.Context, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobProgress(ctx context.Context, id models.JobID, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error)
	ListStaleJobs(ctx context.Context, updatedBefore time.Time) ([]*models.Job, error)
}

type JobFilter struct {
	UserID uuid.UUID
	Status models.JobStatus
	Page   int
	Limit  int
}

// JobUpdate holds the optional fields of a progress update.
type JobUpdate struct {
	CurrentStep  *int
	ErrorMessage *string
	PreviewURL   *string
}

type JobUpdateOption func(*JobUpdate)

// ResolveJobUpdate applies opts to an empty JobUpdate.
func ResolveJobUpdate(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithCurrentStep(step int) JobUpdateOption {
	return func(p *JobUpdate) {
		p.CurrentStep = &step
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorMessage = &msg
	}
}

func WithPreviewURL(url string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.PreviewURL = &url
	}
}

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusQueued:        {models.JobStatusPreprocessing, models.JobStatusTraining, models.JobStatusFailed},
	models.JobStatusPreprocessing: {models.JobStatusTraining, models.JobStatusFailed},
	models.JobStatusTraining:      {models.JobStatusTraining, models.JobStatusUploading, models.JobStatusFailed},
	models.JobStatusUploading:     {models.JobStatusCompleted, models.JobStatusFailed},
}

// CanTransition reports whether a job in status from may move to status to.
func CanTransition(from, to models.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
