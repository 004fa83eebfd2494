package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/analysis"
	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

const historyBarWidth = 20

// RenderHistory draws one line per job followed by the paging footer.
func RenderHistory(jobs []*models.Job, meta response.PaginationMeta) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Training history"))
	b.WriteString("\n\n")

	if len(jobs) == 0 {
		b.WriteString(mutedStyle.Render("  No training jobs yet."))
		b.WriteString("\n")
		return b.String()
	}

	for _, job := range jobs {
		p := training.TranslateJob(job)
		b.WriteString(fmt.Sprintf("  %s %-24s %s %3.0f%%  %s\n",
			StatusIcon(job.Status),
			truncate(job.Title, 24),
			RenderBar(p.Fraction, historyBarWidth),
			p.Fraction*100,
			mutedStyle.Render(job.CreatedAt.Local().Format("2006-01-02 15:04")),
		))
		if job.Status != models.JobStatusCompleted {
			b.WriteString(fmt.Sprintf("    %s\n", mutedStyle.Render(p.Message)))
		}
	}

	footer := fmt.Sprintf("page %d · %d of %d jobs", meta.Page, len(jobs), meta.Total)
	if meta.HasNext {
		footer += fmt.Sprintf(" · next: --page %d", meta.Page+1)
	}
	b.WriteString(helpStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

// RenderFailures summarizes repeated failure reasons.
func RenderFailures(groups []analysis.FailureGroup) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Failure reasons"))
	b.WriteString("\n\n")

	if len(groups) == 0 {
		b.WriteString(mutedStyle.Render("  No failed jobs."))
		b.WriteString("\n")
		return b.String()
	}

	for _, g := range groups {
		b.WriteString(fmt.Sprintf("  %s %3dx  %s\n", statusFailed.String(), g.Count, truncate(g.SampleMessage, 72)))
		b.WriteString(fmt.Sprintf("        %s\n", mutedStyle.Render("last seen "+since(g.LastSeen))))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func since(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
