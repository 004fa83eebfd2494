package training

import "github.com/kiranshivaraju/lorastudio/pkg/models"

// ResultKind tags a terminal session outcome.
type ResultKind int

const (
	ResultSuccess ResultKind = iota + 1
	ResultFailure
	ResultTimeout
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once per session to the completion handler.
// Reason is set for failures and for timeouts caused by fetch errors.
type Result struct {
	Kind       ResultKind
	Generation uint64
	JobID      models.JobID
	Reason     string
	Job        *models.Job
}

// State is the poller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StopReason records why the last session stopped.
type StopReason int

const (
	StopNone StopReason = iota
	StopSuccess
	StopFailure
	StopTimeout
	// StopInvalidated means the backend no longer reports the tracked job as
	// the caller's active job. No result is delivered.
	StopInvalidated
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSuccess:
		return "success"
	case StopFailure:
		return "failure"
	case StopTimeout:
		return "timeout"
	case StopInvalidated:
		return "invalidated"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session state handed to observers.
type Snapshot struct {
	Generation   uint64
	State        State
	Stop         StopReason
	JobID        models.JobID
	Attempts     int
	Active       bool
	LastStatus   models.JobStatus
	CurrentStep  int
	TotalSteps   int
	Progress     Progress
	LastFetchErr error
}
