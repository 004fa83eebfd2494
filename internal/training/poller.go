package training

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Fetcher returns the caller's current active job, or nil when there is none.
type Fetcher interface {
	ActiveJob(ctx context.Context) (*models.Job, error)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between the end of one fetch and the next.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts caps the number of fetches per session.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithScheduler(s Scheduler) PollerOption {
	return func(p *Poller) { p.sched = s }
}

func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithResultHandler registers the completion callback. It is invoked at most
// once per session, outside the poller's lock.
func WithResultHandler(fn func(Result)) PollerOption {
	return func(p *Poller) { p.onResult = fn }
}

// WithInvalidationHandler registers fn to run with the job id when a session
// is invalidated. It is invoked outside the poller's lock.
func WithInvalidationHandler(fn func(models.JobID)) PollerOption {
	return func(p *Poller) { p.onInvalid = fn }
}

// WithContext sets the parent context of every fetch.
func WithContext(ctx context.Context) PollerOption {
	return func(p *Poller) { p.baseCtx = ctx }
}

// Poller tracks one job at a time with a self-rescheduling timer. At most one
// fetch is in flight; the next one is scheduled only after the previous one
// resolved. Every session has a generation number and results from older
// generations are discarded.
type Poller struct {
	fetcher     Fetcher
	sched       Scheduler
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	baseCtx     context.Context
	onResult    func(Result)
	onInvalid   func(models.JobID)

	mu          sync.Mutex
	gen         uint64
	state       State
	stop        StopReason
	jobID       models.JobID
	attempts    int
	lastStatus  models.JobStatus
	currentStep int
	totalSteps  int
	progress    Progress
	lastErr     error
	timer       Timer
	cancelFetch context.CancelFunc

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewPoller creates an idle Poller.
func NewPoller(f Fetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:     f,
		sched:       RealScheduler(),
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		baseCtx:     context.Background(),
		observers:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins tracking jobID and returns the session generation. Any prior
// session is superseded: its pending timer is stopped, its in-flight fetch is
// cancelled and its result will not be applied.
func (p *Poller) Start(jobID models.JobID) uint64 {
	p.mu.Lock()
	p.releaseLocked()
	p.gen++
	gen := p.gen
	p.state = StatePolling
	p.stop = StopNone
	p.jobID = jobID
	p.attempts = 0
	p.lastStatus = ""
	p.currentStep = 0
	p.totalSteps = 0
	p.progress = Progress{}
	p.lastErr = nil
	p.scheduleLocked(gen, 0)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info("poll session started", "job_id", jobID, "generation", gen)
	p.notify(snap)
	return gen
}

// Cancel stops the active session without delivering a result. A fetch that
// is already in flight has its result discarded.
func (p *Poller) Cancel() {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.releaseLocked()
	p.gen++
	jobID := p.jobID
	p.state = StateIdle
	p.stop = StopCancelled
	p.jobID = ""
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info("poll session cancelled", "job_id", jobID)
	p.notify(snap)
}

// Snapshot returns the current session state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe registers fn for every state change and returns a function that
// removes it. fn must not call back into the Poller synchronously.
func (p *Poller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

func (p *Poller) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ctx, cancel := context.WithCancel(p.baseCtx)
	p.cancelFetch = cancel
	jobID := p.jobID
	p.mu.Unlock()

	job, err := p.fetcher.ActiveJob(ctx)
	cancel()
	p.apply(gen, jobID, job, err)
}

func (p *Poller) apply(gen uint64, jobID models.JobID, job *models.Job, err error) {
	p.mu.Lock()
	if gen != p.gen || p.state != StatePolling {
		p.mu.Unlock()
		p.logger.Debug("discarding stale poll result", "job_id", jobID, "generation", gen)
		return
	}
	p.cancelFetch = nil

	var (
		result      *Result
		invalidated models.JobID
	)
	switch {
	case err != nil:
		p.attempts++
		fetchErr := &TransientFetchError{JobID: jobID, Attempt: p.attempts, Err: err}
		p.lastErr = fetchErr
		p.logger.Warn("poll fetch failed", "error", fetchErr, "job_id", jobID, "attempt", p.attempts)
		if p.attempts >= p.maxAttempts {
			result = p.terminateLocked(StopTimeout, Result{
				Kind:   ResultTimeout,
				Reason: "could not retrieve training status",
			})
		} else {
			p.scheduleLocked(gen, p.interval)
		}

	case job == nil || job.ID != jobID:
		// The backend no longer reports this job as active. Stop quietly.
		var seen models.JobID
		if job != nil {
			seen = job.ID
		}
		p.logger.Warn("tracked job is no longer active", "job_id", jobID, "active_job_id", seen)
		p.state = StateIdle
		p.stop = StopInvalidated
		p.jobID = ""
		invalidated = jobID

	case job.Status == models.JobStatusCompleted:
		p.observeLocked(job)
		result = p.terminateLocked(StopSuccess, Result{Kind: ResultSuccess, Job: job})

	case job.Status == models.JobStatusFailed:
		p.observeLocked(job)
		result = p.terminateLocked(StopFailure, Result{
			Kind:   ResultFailure,
			Reason: p.progress.Message,
			Job:    job,
		})

	default:
		p.observeLocked(job)
		p.attempts++
		p.lastErr = nil
		if p.attempts >= p.maxAttempts {
			result = p.terminateLocked(StopTimeout, Result{Kind: ResultTimeout, Job: job})
		} else {
			p.scheduleLocked(gen, p.interval)
		}
	}

	snap := p.snapshotLocked()
	onResult := p.onResult
	onInvalid := p.onInvalid
	p.mu.Unlock()

	if invalidated != "" && onInvalid != nil {
		onInvalid(invalidated)
	}
	p.notify(snap)
	if result != nil {
		p.logger.Info("poll session finished",
			"job_id", result.JobID, "result", result.Kind.String(), "attempts", snap.Attempts)
		if onResult != nil {
			onResult(*result)
		}
	}
}

func (p *Poller) observeLocked(job *models.Job) {
	p.lastStatus = job.Status
	p.currentStep = job.CurrentStep
	p.totalSteps = job.TotalSteps
	p.progress = TranslateJob(job)
}

// terminateLocked ends the session and returns the result to deliver.
func (p *Poller) terminateLocked(reason StopReason, r Result) *Result {
	r.Generation = p.gen
	r.JobID = p.jobID
	p.releaseLocked()
	p.state = StateTerminated
	p.stop = reason
	p.jobID = ""
	return &r
}

func (p *Poller) scheduleLocked(gen uint64, d time.Duration) {
	p.timer = p.sched.AfterFunc(d, func() { p.tick(gen) })
}

// releaseLocked stops the pending timer and cancels the in-flight fetch.
func (p *Poller) releaseLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
}

func (p *Poller) snapshotLocked() Snapshot {
	return Snapshot{
		Generation:   p.gen,
		State:        p.state,
		Stop:         p.stop,
		JobID:        p.jobID,
		Attempts:     p.attempts,
		Active:       p.state == StatePolling,
		LastStatus:   p.lastStatus,
		CurrentStep:  p.currentStep,
		TotalSteps:   p.totalSteps,
		Progress:     p.progress,
		LastFetchErr: p.lastErr,
	}
}

func (p *Poller) notify(s Snapshot) {
	p.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.obsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
