// Package analysis groups failed training jobs by the shape of their error
// message, so repeated failures show up once with a count.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\s*`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reMemSize    = regexp.MustCompile(`(?i)\d+(\.\d+)?\s*(GiB|MiB|KiB|GB|MB|KB)\b`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reNumber     = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const (
	maxSampleBytes     = 2000
	maxNormalizedBytes = 500
	// unknownFailure groups failed jobs that carry no message.
	unknownFailure = "Training failed"
)

// FailureGroup is a set of failed jobs whose error messages normalize to
// the same text.
type FailureGroup struct {
	Fingerprint   string
	SampleMessage string
	Count         int
	FirstSeen     time.Time
	LastSeen      time.Time
	JobIDs        []models.JobID
}

// GroupFailures groups the FAILED jobs in jobs by error fingerprint.
// Groups are sorted by Count DESC, then LastSeen DESC. Returns an empty
// slice (never nil) when no job failed.
func GroupFailures(jobs []*models.Job) []FailureGroup {
	groups := make(map[string]*FailureGroup)

	for _, job := range jobs {
		if job == nil || job.Status != models.JobStatusFailed {
			continue
		}
		msg := unknownFailure
		if job.ErrorMessage != nil && strings.TrimSpace(*job.ErrorMessage) != "" {
			msg = *job.ErrorMessage
		}
		at := failedAt(job)

		fp := Fingerprint(msg)
		g, exists := groups[fp]
		if !exists {
			g = &FailureGroup{
				Fingerprint:   fp,
				SampleMessage: truncateString(msg, maxSampleBytes),
				FirstSeen:     at,
				LastSeen:      at,
			}
			groups[fp] = g
		}

		g.Count++
		g.JobIDs = append(g.JobIDs, job.ID)
		if at.Before(g.FirstSeen) {
			g.FirstSeen = at
		}
		if at.After(g.LastSeen) {
			g.LastSeen = at
			g.SampleMessage = truncateString(msg, maxSampleBytes)
		}
	}

	out := make([]FailureGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	return out
}

// Fingerprint computes a stable SHA-256 fingerprint for an error message.
func Fingerprint(message string) string {
	normalized := NormalizeMessage(message)
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// NormalizeMessage applies all normalization rules to an error message.
func NormalizeMessage(msg string) string {
	msg = reDatetime.ReplaceAllString(msg, "")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reMemSize.ReplaceAllString(msg, "SIZE")
	msg = reBracketNum.ReplaceAllString(msg, "[N]")
	msg = reParenNum.ReplaceAllString(msg, "(N)")
	msg = reNumber.ReplaceAllString(msg, "N")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(msg)
	msg = strings.TrimSpace(msg)
	msg = truncateString(msg, maxNormalizedBytes)
	return msg
}

func failedAt(job *models.Job) time.Time {
	if job.CompletedAt != nil {
		return job.CompletedAt.UTC()
	}
	return job.UpdatedAt.UTC()
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
