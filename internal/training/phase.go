package training

import (
	"fmt"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

const failedFallback = "Training failed"

// Progress is the display form of a job phase.
type Progress struct {
	Message  string
	Fraction float64
}

// Translate maps a raw phase to a display message and a progress fraction in
// [0, 1]. Unknown phases are passed through as their raw string.
func Translate(status models.JobStatus, currentStep, totalSteps int, errorMessage string) Progress {
	var msg string
	switch status {
	case models.JobStatusPreprocessing:
		msg = "Preprocessing images..."
	case models.JobStatusTraining:
		msg = fmt.Sprintf("Training epoch %d/%d...", currentStep, totalSteps)
	case models.JobStatusUploading:
		msg = "Uploading model..."
	case models.JobStatusCompleted:
		msg = "Training completed successfully!"
	case models.JobStatusFailed:
		msg = errorMessage
		if msg == "" {
			msg = failedFallback
		}
	default:
		msg = string(status)
	}
	return Progress{Message: msg, Fraction: fraction(currentStep, totalSteps)}
}

// TranslateJob is Translate applied to a job record.
func TranslateJob(j *models.Job) Progress {
	var errMsg string
	if j.ErrorMessage != nil {
		errMsg = *j.ErrorMessage
	}
	return Translate(j.Status, j.CurrentStep, j.TotalSteps, errMsg)
}

func fraction(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(current) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
