package training

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// --- manual scheduler ---

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
	queue  []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	s.queue = append(s.queue, t)
	return t
}

// fireNext runs the oldest live timer synchronously.
func (s *manualScheduler) fireNext() bool {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return false
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		if t.stopped {
			continue
		}
		t.stopped = true
		t.fn()
		return true
	}
}

// drain fires timers until none are left or limit is reached.
func (s *manualScheduler) drain(limit int) int {
	n := 0
	for n < limit && s.fireNext() {
		n++
	}
	return n
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

// --- fetcher stub ---

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*models.Job, error)
}

func (f *stubFetcher) ActiveJob(_ context.Context) (*models.Job, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func jobWith(id models.JobID, status models.JobStatus, step, total int) *models.Job {
	return &models.Job{ID: id, Status: status, CurrentStep: step, TotalSteps: total}
}

// --- result recorder ---

type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultRecorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// --- notifier ---

type notification struct {
	Level   Level
	Message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (n *recordingNotifier) Notify(level Level, message string) {
	n.mu.Lock()
	n.items = append(n.items, notification{level, message})
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.items...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(f Fetcher, sched Scheduler, rec *resultRecorder, maxAttempts int) *Poller {
	return NewPoller(f,
		WithScheduler(sched),
		WithMaxAttempts(maxAttempts),
		WithLogger(discardLogger()),
		WithResultHandler(rec.record),
	)
}
