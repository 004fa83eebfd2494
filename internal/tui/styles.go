package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("39")  // Blue
	colorSecondary = lipgloss.Color("241") // Gray
	colorSuccess   = lipgloss.Color("42")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
	colorMuted     = lipgloss.Color("240") // Dark gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	toastStyles = map[string]lipgloss.Style{
		"success": lipgloss.NewStyle().Bold(true).Foreground(colorSuccess),
		"error":   lipgloss.NewStyle().Bold(true).Foreground(colorError),
		"info":    lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	}

	statusCompleted = lipgloss.NewStyle().
			Foreground(colorSuccess).
			SetString("✓")

	statusInProgress = lipgloss.NewStyle().
				Foreground(colorWarning).
				SetString("●")

	statusFailed = lipgloss.NewStyle().
			Foreground(colorError).
			SetString("✗")

	statusQueued = lipgloss.NewStyle().
			Foreground(colorMuted).
			SetString("○")

	barFull = lipgloss.NewStyle().
		Foreground(colorSuccess).
		SetString("█")

	barEmpty = lipgloss.NewStyle().
			Foreground(colorMuted).
			SetString("░")

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSecondary).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)
)

// StatusIcon returns the icon for a job status.
func StatusIcon(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted:
		return statusCompleted.String()
	case models.JobStatusFailed:
		return statusFailed.String()
	case models.JobStatusQueued:
		return statusQueued.String()
	default:
		return statusInProgress.String()
	}
}

// RenderBar draws a fixed-width bar for a fraction in [0, 1].
func RenderBar(fraction float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(fraction * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat(barFull.String(), filled) + strings.Repeat(barEmpty.String(), width-filled)
}
