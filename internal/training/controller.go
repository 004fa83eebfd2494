package training

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// JobCreator submits a training job to the backend.
type JobCreator interface {
	CreateJob(ctx context.Context, cfg models.TrainingConfig) (*models.Job, error)
}

// Controller wires submission, polling and completion for one caller context.
type Controller struct {
	creator    JobCreator
	poller     *Poller
	completion *CompletionHandler
	form       *Form
	policy     Policy
}

// NewController builds the poller with the given options and routes its
// results into a CompletionHandler.
func NewController(creator JobCreator, fetcher Fetcher, form *Form, n Notifier, policy Policy, opts ...PollerOption) *Controller {
	c := &Controller{
		creator:    creator,
		form:       form,
		policy:     policy,
		completion: NewCompletionHandler(form, n),
	}
	opts = append(opts,
		WithResultHandler(func(r Result) { c.completion.Handle(r) }),
		WithInvalidationHandler(c.completion.Untrack),
	)
	c.poller = NewPoller(fetcher, opts...)
	return c
}

// Submit validates cfg, creates the job and starts a poll session for it.
// No session is started when an error is returned.
func (c *Controller) Submit(ctx context.Context, cfg models.TrainingConfig) (*models.Job, error) {
	if err := Validate(cfg, c.policy); err != nil {
		return nil, err
	}

	job, err := c.creator.CreateJob(ctx, cfg)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	if job == nil || job.ID == "" {
		return nil, &SubmissionError{Err: errors.New("empty response")}
	}

	c.completion.Track(job.ID)
	c.poller.Start(job.ID)
	return job, nil
}

// Resume starts a poll session for a job that was submitted earlier.
func (c *Controller) Resume(id models.JobID) uint64 {
	c.completion.Track(id)
	return c.poller.Start(id)
}

// Cancel stops the current session, for example when the view goes away.
func (c *Controller) Cancel() {
	c.poller.Cancel()
	c.completion.Track("")
}

func (c *Controller) Poller() *Poller { return c.poller }
func (c *Controller) Completion() *CompletionHandler { return c.completion }
func (c *Controller) Form() *Form { return c.form }
func (c *Controller) Snapshot() Snapshot { return c.poller.Snapshot() }
