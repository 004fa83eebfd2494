package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/training"
)

// Toast is a short-lived message for the user.
type Toast struct {
	Level   training.Level
	Message string
	At      time.Time
}

// Toasts queues user-facing messages and publishes each to subscribers.
// It implements training.Notifier.
type Toasts struct {
	b   *broadcaster[Toast]
	now func() time.Time

	mu      sync.Mutex
	history []Toast
	limit   int
}

// NewToasts keeps the last limit toasts for late subscribers.
func NewToasts(limit int) *Toasts {
	if limit < 1 {
		limit = 1
	}
	return &Toasts{b: newBroadcaster[Toast](), now: time.Now, limit: limit}
}

func (t *Toasts) Notify(level training.Level, message string) {
	toast := Toast{Level: level, Message: message, At: t.now()}

	t.mu.Lock()
	t.history = append(t.history, toast)
	if len(t.history) > t.limit {
		t.history = t.history[len(t.history)-t.limit:]
	}
	t.mu.Unlock()

	if t.b.publish(toast) == 0 {
		slog.Debug("toast had no subscribers", "level", level, "message", message)
	}
}

// Subscribe returns a channel of new toasts and a function to stop receiving.
func (t *Toasts) Subscribe() (<-chan Toast, func()) {
	return t.b.subscribe()
}

// Recent returns the retained toasts, oldest first.
func (t *Toasts) Recent() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Toast, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Toasts) Close() { t.b.close() }

var _ training.Notifier = (*Toasts)(nil)
