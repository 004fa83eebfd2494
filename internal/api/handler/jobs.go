package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// JobService defines what the job handlers depend on.
type JobService interface {
	Create(ctx context.Context, userID uuid.UUID, cfg models.TrainingConfig) (*models.Job, error)
	Active(ctx context.Context, userID uuid.UUID) (*models.Job, error)
	Get(ctx context.Context, userID uuid.UUID, id models.JobID) (*models.Job, error)
	List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
	ReportProgress(ctx context.Context, id models.JobID, p models.JobProgress) (*models.Job, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var cfg models.TrainingConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := svc.Create(r.Context(), userID, cfg)
		if err != nil {
			writeJobError(w, r, err)
			return
		}
		response.Created(w, job)
	}
}

// NewActiveJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/active.
// The data member is null when the caller has no current job.
func NewActiveJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		job, err := svc.Active(r.Context(), userID)
		if err != nil {
			writeJobError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		q := r.URL.Query()
		page, err := intParam(q.Get("page"), 1)
		if err != nil || page < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		limit, err := intParam(q.Get("limit"), 20)
		if err != nil || limit < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		if limit > 100 {
			limit = 100
		}

		jobs, total, err := svc.List(r.Context(), store.JobFilter{
			UserID: userID,
			Status: models.JobStatus(strings.ToUpper(q.Get("status"))),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			writeJobError(w, r, err)
			return
		}

		response.Collection(w, jobs, response.NewPage(page, limit, total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		job, err := svc.Get(r.Context(), userID, models.JobID(chi.URLParam(r, "jobID")))
		if err != nil {
			writeJobError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewReportProgressHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/progress, called by training workers.
func NewReportProgressHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p models.JobProgress
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		p.Status = models.JobStatus(strings.ToUpper(string(p.Status)))

		job, err := svc.ReportProgress(r.Context(), models.JobID(chi.URLParam(r, "jobID")), p)
		if err != nil {
			writeJobError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *training.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", verr.Error(),
			map[string]string{"field": verr.Field, "reason": verr.Reason})
	case errors.Is(err, store.ErrActiveJobExists):
		response.Error(w, http.StatusConflict, "ACTIVE_JOB_EXISTS",
			"A training job is already running for this account", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Training job not found", nil)
	default:
		slog.Error("job request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
