// Package tui renders a training poll session in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kiranshivaraju/lorastudio/internal/services"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// finishGrace is how long the view waits for the completion toast after
// the session terminates.
const finishGrace = 2 * time.Second

// SnapshotSource is satisfied by *training.Poller.
type SnapshotSource interface {
	Subscribe(fn func(training.Snapshot)) (unsubscribe func())
}

// Canceler stops the poll session when the user quits.
type Canceler interface {
	Cancel()
}

// Feed turns a poller subscription into a channel that always holds the
// latest snapshot. Older undelivered snapshots are dropped.
func Feed(src SnapshotSource) (<-chan training.Snapshot, func()) {
	ch := make(chan training.Snapshot, 1)
	unsubscribe := src.Subscribe(func(s training.Snapshot) {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	})
	return ch, unsubscribe
}

// Sources are the channels the view listens on. Any may be nil.
type Sources struct {
	Snapshots <-chan training.Snapshot
	Toasts    <-chan services.Toast
	Network   <-chan services.NetworkState
}

type (
	snapshotMsg training.Snapshot
	toastMsg    services.Toast
	networkMsg  services.NetworkState
	graceMsg    struct{}
)

// Model is the bubbletea model for one poll session.
type Model struct {
	title   string
	cancel  Canceler
	sources Sources

	spinner spinner.Model
	bar     progress.Model

	snap     training.Snapshot
	jobID    models.JobID
	network  services.NetworkState
	toast    *services.Toast
	finished bool
	quitting bool
}

// New creates the view. initial is shown until the first snapshot arrives.
func New(title string, initial training.Snapshot, cancel Canceler, src Sources) Model {
	return Model{
		title:   title,
		cancel:  cancel,
		sources: src,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(warningStyle)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		snap:    initial,
		jobID:   initial.JobID,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		listen(m.sources.Snapshots, func(s training.Snapshot) tea.Msg { return snapshotMsg(s) }),
		listen(m.sources.Toasts, func(t services.Toast) tea.Msg { return toastMsg(t) }),
		listen(m.sources.Network, func(n services.NetworkState) tea.Msg { return networkMsg(n) }),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.finished && m.cancel != nil {
				m.cancel.Cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.snap = training.Snapshot(msg)
		if m.snap.JobID != "" {
			m.jobID = m.snap.JobID
		}
		next := listen(m.sources.Snapshots, func(s training.Snapshot) tea.Msg { return snapshotMsg(s) })
		switch {
		case m.snap.State == training.StateTerminated:
			m.finished = true
			if m.toast != nil {
				return m, tea.Quit
			}
			return m, tea.Tick(finishGrace, func(time.Time) tea.Msg { return graceMsg{} })
		case m.snap.Stop == training.StopInvalidated || m.snap.Stop == training.StopCancelled:
			m.finished = true
			return m, tea.Quit
		}
		return m, next

	case toastMsg:
		t := services.Toast(msg)
		m.toast = &t
		if m.finished {
			return m, tea.Quit
		}
		return m, listen(m.sources.Toasts, func(t services.Toast) tea.Msg { return toastMsg(t) })

	case networkMsg:
		m.network = services.NetworkState(msg)
		return m, listen(m.sources.Network, func(n services.NetworkState) tea.Msg { return networkMsg(n) })

	case graceMsg:
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	msg := m.snap.Progress.Message
	if msg == "" {
		msg = "Waiting for the training worker..."
	}
	if m.finished {
		b.WriteString(fmt.Sprintf("%s %s\n", StatusIcon(m.snap.LastStatus), messageStyle.Render(msg)))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), messageStyle.Render(msg)))
	}

	b.WriteString(m.bar.ViewAs(m.snap.Progress.Fraction))
	b.WriteString("\n")

	details := fmt.Sprintf("job %s · step %d/%d · poll %d", m.displayID(), m.snap.CurrentStep, m.snap.TotalSteps, m.snap.Attempts)
	b.WriteString(mutedStyle.Render(details))
	b.WriteString("\n")

	if m.network == services.Offline {
		b.WriteString(warningStyle.Render("API unreachable, still retrying"))
		b.WriteString("\n")
	} else if m.snap.LastFetchErr != nil {
		b.WriteString(warningStyle.Render("Last status check failed, retrying"))
		b.WriteString("\n")
	}

	if m.snap.Stop == training.StopInvalidated {
		b.WriteString(warningStyle.Render("This job is no longer active. Check the history for its outcome."))
		b.WriteString("\n")
	}

	if m.toast != nil {
		style, ok := toastStyles[string(m.toast.Level)]
		if !ok {
			style = messageStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.toast.Message))
		b.WriteString("\n")
	}

	if !m.finished {
		b.WriteString(helpStyle.Render("q: stop watching (training continues)"))
	}
	b.WriteString("\n")

	return boxStyle.Render(b.String())
}

// Finished reports whether the session ended on its own.
func (m Model) Finished() bool { return m.finished }

// Snapshot returns the last snapshot the view rendered.
func (m Model) Snapshot() training.Snapshot { return m.snap }

// JobID returns the last job the session tracked, even after it terminated.
func (m Model) JobID() models.JobID { return m.jobID }

func (m Model) displayID() string {
	if m.jobID != "" {
		return m.jobID.String()
	}
	return "-"
}

// listen reads one value from ch. A nil or closed channel yields no message.
func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(v)
	}
}
