package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// --- in-memory store ---

type memStore struct {
	mu   sync.Mutex
	jobs map[models.JobID]*models.Job
	now  func() time.Time
}

var _ store.Store = (*memStore)(nil)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{jobs: map[models.JobID]*models.Job{}, now: now}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetUser(context.Context, uuid.UUID) (*models.User, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) CreateUser(context.Context, *models.User) error { return nil }

func (m *memStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *memStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (m *memStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }

func (m *memStore) ListAPIKeys(context.Context, uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *memStore) RevokeAPIKey(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *memStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.UserID == job.UserID && !j.Status.Terminal() {
			return store.ErrActiveJobExists
		}
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, id models.JobID, userID uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) GetJobByID(_ context.Context, id models.JobID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) GetLatestJob(_ context.Context, userID uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Job
	for _, j := range m.jobs {
		if j.UserID == userID && (latest == nil || j.CreatedAt.After(latest.CreatedAt)) {
			latest = j
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, f store.JobFilter) ([]*models.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.UserID == f.UserID && (f.Status == "" || j.Status == f.Status) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, len(out), nil
}

func (m *memStore) UpdateJobProgress(_ context.Context, id models.JobID, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.CanTransition(j.Status, status) {
		return nil, store.ErrInvalidTransition
	}
	u := store.ResolveJobUpdate(opts...)
	j.Status = status
	j.UpdatedAt = m.now()
	if u.CurrentStep != nil {
		j.CurrentStep = *u.CurrentStep
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = u.ErrorMessage
	}
	if u.PreviewURL != nil {
		j.PreviewURL = u.PreviewURL
	}
	if status.Terminal() {
		t := m.now()
		j.CompletedAt = &t
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListStaleJobs(_ context.Context, before time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if !j.Status.Terminal() && j.UpdatedAt.Before(before) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) put(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

// --- in-memory cache ---

type memCache struct {
	mu         sync.Mutex
	active     map[uuid.UUID]*models.Job
	ttls       map[uuid.UUID]time.Duration
	failReads  bool
	failWrites bool
}

func newMemCache() *memCache {
	return &memCache{active: map[uuid.UUID]*models.Job{}, ttls: map[uuid.UUID]time.Duration{}}
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) SetActiveJob(_ context.Context, userID uuid.UUID, job *models.Job, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("redis: connection refused")
	}
	cp := *job
	c.active[userID] = &cp
	c.ttls[userID] = ttl
	return nil
}

func (c *memCache) GetActiveJob(_ context.Context, userID uuid.UUID) (*models.Job, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, false, errors.New("redis: connection refused")
	}
	j, ok := c.active[userID]
	if !ok {
		return nil, false, nil
	}
	cp := *j
	return &cp, true, nil
}

func (c *memCache) DeleteActiveJob(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, userID)
	return nil
}

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func (c *memCache) ttl(userID uuid.UUID) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[userID]
}

// --- image store ---

type stubImages struct {
	missing map[string]bool
	err     error
	checked int
}

func (s *stubImages) PresignUploads(context.Context, uuid.UUID, int, string) ([]models.UploadTarget, error) {
	return nil, nil
}

func (s *stubImages) Exists(_ context.Context, key string) (bool, error) {
	s.checked++
	if s.err != nil {
		return false, s.err
	}
	return !s.missing[key], nil
}
