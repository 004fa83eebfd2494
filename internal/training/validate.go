package training

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Validate checks cfg against p and returns the first violation as a
// *ValidationError.
func Validate(cfg models.TrainingConfig, p Policy) error {
	if strings.TrimSpace(cfg.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	n := len(cfg.ImageKeys)
	if n < p.MinImages || n > p.MaxImages {
		return &ValidationError{
			Field:  "imageKeys",
			Reason: fmt.Sprintf("need between %d and %d images, got %d", p.MinImages, p.MaxImages, n),
		}
	}
	for i, k := range cfg.ImageKeys {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Field: "imageKeys", Reason: fmt.Sprintf("image %d has an empty key", i)}
		}
	}
	if cfg.Epochs < p.MinEpochs || cfg.Epochs > p.MaxEpochs {
		return &ValidationError{
			Field:  "epochs",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", p.MinEpochs, p.MaxEpochs, cfg.Epochs),
		}
	}
	if !(cfg.LearningRate >= p.MinLearningRate && cfg.LearningRate <= p.MaxLearningRate) {
		return &ValidationError{
			Field:  "learningRate",
			Reason: fmt.Sprintf("must be between %g and %g, got %g", p.MinLearningRate, p.MaxLearningRate, cfg.LearningRate),
		}
	}
	if !p.rankAllowed(cfg.LoraRank) {
		return &ValidationError{
			Field:  "loraRank",
			Reason: fmt.Sprintf("must be one of %v, got %d", p.LoraRanks, cfg.LoraRank),
		}
	}
	if strings.TrimSpace(cfg.BaseModel) == "" {
		return &ValidationError{Field: "baseModel", Reason: "is required"}
	}
	return nil
}
