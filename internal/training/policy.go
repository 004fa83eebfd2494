// Package training tracks long-running LoRA training jobs on the client:
// it validates and submits a job, polls the backend for the caller's active
// job, translates phases into display state and delivers a single terminal
// result per session.
package training

import "time"

const (
	DefaultPollInterval = time.Second
	// DefaultMaxAttempts caps a session at roughly two hours of polling.
	DefaultMaxAttempts = 7200
)

// Policy holds the submission limits shared by the client and the server.
type Policy struct {
	MinImages       int
	MaxImages       int
	MinEpochs       int
	MaxEpochs       int
	MinLearningRate float64
	MaxLearningRate float64
	LoraRanks       []int
}

// DefaultPolicy returns the production submission limits.
func DefaultPolicy() Policy {
	return Policy{
		MinImages:       10,
		MaxImages:       40,
		MinEpochs:       5,
		MaxEpochs:       250,
		MinLearningRate: 2e-5,
		MaxLearningRate: 2e-4,
		LoraRanks:       []int{16, 32, 64},
	}
}

func (p Policy) rankAllowed(rank int) bool {
	for _, r := range p.LoraRanks {
		if r == rank {
			return true
		}
	}
	return false
}
