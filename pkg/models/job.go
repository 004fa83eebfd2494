package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the backend phase of a training job.
type JobStatus string

const (
	JobStatusQueued        JobStatus = "QUEUED"
	JobStatusPreprocessing JobStatus = "PREPROCESSING"
	JobStatusTraining      JobStatus = "TRAINING"
	JobStatusUploading     JobStatus = "UPLOADING"
	JobStatusCompleted     JobStatus = "COMPLETED"
	JobStatusFailed        JobStatus = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known phases.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusPreprocessing, JobStatusTraining,
		JobStatusUploading, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobID is an opaque identifier assigned by the backend at submission time.
// The server issues UUID strings; decoding also accepts JSON numbers so that
// backends using integer keys are tracked the same way.
type JobID string

// UnmarshalJSON accepts both `"abc"` and `42`.
func (id *JobID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = JobID(n.String())
	return nil
}

func (id JobID) String() string { return string(id) }

// Job tracks one LoRA training run. The API returns it from POST /api/v1/jobs;
// the client polls GET /api/v1/jobs/active until status is COMPLETED or FAILED.
type Job struct {
	ID           JobID      `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"userId"`
	Title        string     `db:"title"         json:"title"`
	Description  string     `db:"description"   json:"description,omitempty"`
	TriggerWord  string     `db:"trigger_word"  json:"triggerWord,omitempty"`
	Status       JobStatus  `db:"status"        json:"status"`
	CurrentStep  int        `db:"current_step"  json:"currentStep"`
	TotalSteps   int        `db:"total_steps"   json:"totalSteps"`
	Epochs       int        `db:"epochs"        json:"epochs"`
	LearningRate float64    `db:"learning_rate" json:"learningRate"`
	LoraRank     int        `db:"lora_rank"     json:"loraRank"`
	BaseModel    string     `db:"base_model"    json:"baseModel"`
	IsPublic     bool       `db:"is_public"     json:"isPublic"`
	ImageKeys    []string   `db:"image_keys"    json:"imageKeys,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"errorMessage,omitempty"`
	PreviewURL   *string    `db:"preview_url"   json:"previewUrl,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"startedAt,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completedAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updatedAt"`
}

// TrainingConfig is the submission payload for a new training job.
type TrainingConfig struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	TriggerWord  string   `json:"triggerWord,omitempty"`
	Epochs       int      `json:"epochs"`
	LearningRate float64  `json:"learningRate"`
	LoraRank     int      `json:"loraRank"`
	BaseModel    string   `json:"baseModel"`
	IsPublic     bool     `json:"isPublic"`
	ImageKeys    []string `json:"imageKeys"`
}

// JobProgress is reported by the training worker.
type JobProgress struct {
	Status       JobStatus `json:"status"`
	CurrentStep  *int      `json:"currentStep,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	PreviewURL   string    `json:"previewUrl,omitempty"`
}
