package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kiranshivaraju/lorastudio/internal/analysis"
	"github.com/kiranshivaraju/lorastudio/internal/client"
	"github.com/kiranshivaraju/lorastudio/internal/services"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/internal/tui"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// maxFailurePages bounds how much history -failures reads.
const maxFailurePages = 10

// TrainingConfig builds the submission payload for the train command.
func (o *Options) TrainingConfig(imageKeys []string) models.TrainingConfig {
	return models.TrainingConfig{
		Title:        strings.TrimSpace(o.Title),
		Description:  o.Description,
		TriggerWord:  o.TriggerWord,
		Epochs:       o.Epochs,
		LearningRate: o.LearningRate,
		LoraRank:     o.LoraRank,
		BaseModel:    o.BaseModel,
		IsPublic:     o.Public,
		ImageKeys:    imageKeys,
	}
}

func (a *app) controller(form *training.Form) *training.Controller {
	return training.NewController(a.api, a.network.Fetcher(a.api), form, a.toasts, training.DefaultPolicy(),
		training.WithInterval(a.cfg.PollInterval),
		training.WithMaxAttempts(a.cfg.PollMaxAttempts),
		training.WithLogger(slog.Default()),
	)
}

func (a *app) train(ctx context.Context, opts *Options) error {
	paths, err := client.ImagesInDir(opts.Dir)
	if err != nil {
		return err
	}

	// Check the local inputs before spending time on uploads.
	policy := training.DefaultPolicy()
	if err := training.Validate(opts.TrainingConfig(paths), policy); err != nil {
		return err
	}

	if _, err := a.auth.Verify(ctx); err != nil {
		return fmt.Errorf("verify api key: %w", err)
	}

	fmt.Printf("Uploading %d images...\n", len(paths))
	keys, err := client.NewUploader(a.api, nil, a.cfg.UploadConcurrency).Upload(ctx, paths)
	if err != nil {
		return err
	}

	form := training.NewForm(training.FormFields{
		Title:       opts.Title,
		Description: opts.Description,
		TriggerWord: opts.TriggerWord,
		Images:      paths,
	})
	ctrl := a.controller(form)

	s := a.subscribe(ctrl)
	job, err := ctrl.Submit(ctx, opts.TrainingConfig(keys))
	if err != nil {
		s.close()
		return err
	}
	slog.Info("training job submitted", "job_id", job.ID, "images", len(keys))

	return a.follow(ctx, ctrl, job.Title, s)
}

func (a *app) watch(ctx context.Context) error {
	job, err := a.api.ActiveJob(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		fmt.Println("No active training job.")
		return nil
	}

	ctrl := a.controller(training.NewForm(training.FormFields{}))
	s := a.subscribe(ctrl)
	ctrl.Resume(job.ID)
	return a.follow(ctx, ctrl, job.Title, s)
}

// subscription holds the channels the TUI reads. It is opened before the
// session starts so no snapshot or toast is missed.
type subscription struct {
	sources tui.Sources
	closers []func()
}

func (s *subscription) close() {
	for _, fn := range s.closers {
		fn()
	}
}

func (a *app) subscribe(ctrl *training.Controller) *subscription {
	snapshots, unsubSnapshots := tui.Feed(ctrl.Poller())
	toasts, unsubToasts := a.toasts.Subscribe()
	network, unsubNetwork := a.network.Subscribe()
	return &subscription{
		sources: tui.Sources{Snapshots: snapshots, Toasts: toasts, Network: network},
		closers: []func(){unsubSnapshots, unsubToasts, unsubNetwork},
	}
}

// follow runs the session view until the session ends or the user quits.
func (a *app) follow(ctx context.Context, ctrl *training.Controller, title string, s *subscription) error {
	defer s.close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.network.Watch(watchCtx, networkWatchInterval)

	p := tea.NewProgram(tui.New(title, ctrl.Snapshot(), ctrl, s.sources), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run session view: %w", err)
	}
	ctrl.Cancel()

	m, ok := final.(tui.Model)
	if !ok {
		return nil
	}
	snap := m.Snapshot()
	if snap.Stop == training.StopInvalidated {
		fmt.Println("The job is no longer active. Run `lora history` to see its outcome.")
	}
	if snap.Stop == training.StopSuccess {
		a.savePreview(ctx, m.JobID())
	}
	return nil
}

// savePreview downloads the preview of a finished job into the local cache.
func (a *app) savePreview(ctx context.Context, id models.JobID) {
	if id == "" {
		return
	}
	job, err := a.api.GetJob(ctx, id)
	if err != nil {
		slog.Warn("load finished job", "job_id", id, "error", err)
		return
	}
	if job.PreviewURL == nil || *job.PreviewURL == "" {
		return
	}
	path, err := a.previews.Fetch(ctx, *job.PreviewURL)
	if err != nil {
		slog.Warn("download preview", "job_id", id, "error", err)
		return
	}
	fmt.Printf("Preview saved to %s\n", path)
}

func (a *app) history(ctx context.Context, opts *Options) error {
	if opts.Failures {
		return a.failures(ctx)
	}

	page, err := a.api.ListJobs(ctx, client.ListQuery{Page: opts.Page, Limit: opts.Limit, Status: opts.Status})
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderHistory(page.Jobs, page.Meta))
	return nil
}

func (a *app) failures(ctx context.Context) error {
	var failed []*models.Job
	for n := 1; n <= maxFailurePages; n++ {
		page, err := a.api.ListJobs(ctx, client.ListQuery{Page: n, Limit: 100, Status: models.JobStatusFailed})
		if err != nil {
			return err
		}
		failed = append(failed, page.Jobs...)
		if !page.Meta.HasNext {
			break
		}
	}
	fmt.Print(tui.RenderFailures(analysis.GroupFailures(failed)))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	acct, err := a.auth.Verify(ctx)
	if err != nil {
		if a.auth.State() == services.Rejected {
			return errors.New("the API key was rejected")
		}
		return err
	}
	fmt.Printf("%s <%s>\n", acct.DisplayName, acct.Email)
	fmt.Printf("user:   %s\n", acct.ID)
	fmt.Printf("scopes: %s\n", strings.Join(acct.Scopes, ", "))
	return nil
}
