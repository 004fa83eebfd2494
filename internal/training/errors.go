package training

import (
	"fmt"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// ValidationError is a local precondition failure. It is returned before any
// network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SubmissionError means the backend could not be reached or rejected the job.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting training job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientFetchError is a single failed poll. The poller absorbs it and
// keeps going until the attempt cap is reached.
type TransientFetchError struct {
	JobID   models.JobID
	Attempt int
	Err     error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("poll attempt %d for job %s: %v", e.Attempt, e.JobID, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }
