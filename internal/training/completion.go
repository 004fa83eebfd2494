package training

import (
	"sync"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(level Level, message string)
}

const (
	successMessage = "Training completed successfully!"
	timeoutMessage = "Training is still running. Check the history for updates."
)

// CompletionHandler applies a terminal Result to the UI state: it clears the
// tracked job, resets the form on success and notifies the user.
type CompletionHandler struct {
	form     *Form
	notifier Notifier

	mu          sync.Mutex
	tracked     models.JobID
	lastHandled uint64
}

func NewCompletionHandler(form *Form, n Notifier) *CompletionHandler {
	return &CompletionHandler{form: form, notifier: n}
}

// Track records the job the UI is waiting on.
func (h *CompletionHandler) Track(id models.JobID) {
	h.mu.Lock()
	h.tracked = id
	h.mu.Unlock()
}

// Untrack clears the tracked job if it is still id.
func (h *CompletionHandler) Untrack(id models.JobID) {
	h.mu.Lock()
	if h.tracked == id {
		h.tracked = ""
	}
	h.mu.Unlock()
}

// TrackedJobID returns the job the UI is waiting on, or "" when idle.
func (h *CompletionHandler) TrackedJobID() models.JobID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracked
}

// Handle applies r and reports whether it had any effect. Results for a
// generation that was already handled, or an older one, are ignored.
func (h *CompletionHandler) Handle(r Result) bool {
	h.mu.Lock()
	if r.Generation <= h.lastHandled {
		h.mu.Unlock()
		return false
	}
	h.lastHandled = r.Generation
	if h.tracked == r.JobID {
		h.tracked = ""
	}
	h.mu.Unlock()

	var (
		level Level
		msg   string
	)
	switch r.Kind {
	case ResultSuccess:
		h.form.Reset()
		level, msg = LevelSuccess, successMessage
	case ResultFailure:
		level, msg = LevelError, r.Reason
		if msg == "" {
			msg = failedFallback
		}
	case ResultTimeout:
		level, msg = LevelInfo, timeoutMessage
	default:
		return true
	}
	if h.notifier != nil {
		h.notifier.Notify(level, msg)
	}
	return true
}
