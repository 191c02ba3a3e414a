// Package tui provides the Bubble Tea watch view for the warden CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI is read-only: it follows the run record and event stream and
//     never writes an artifact
package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Run statuses map onto these through StateStyle.
var (
	colorAccent  = lipgloss.Color("#7C3AED") // violet, titles
	colorOK      = lipgloss.Color("#10B981") // green, terminal ok
	colorPending = lipgloss.Color("#F59E0B") // amber, in-progress
	colorDenied  = lipgloss.Color("#EF4444") // red, failed/blocked/denials
	colorMuted   = lipgloss.Color("#6B7280") // gray, labels and help
)

var (
	// TitleStyle renders the run header.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	// LabelStyle renders field labels in the run record block.
	LabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(16)

	// ValueStyle renders plain field values and event lines.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle marks finalized-ok statuses and run_finalized events.
	SuccessStyle = lipgloss.NewStyle().Foreground(colorOK)

	// WarningStyle marks runs still in progress.
	WarningStyle = lipgloss.NewStyle().Foreground(colorPending)

	// ErrorStyle marks failed/blocked statuses, denial events, and load
	// errors.
	ErrorStyle = lipgloss.NewStyle().Foreground(colorDenied)

	// BoxStyle frames the whole watch view.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(1, 2)

	// HelpStyle renders the quit hint and placeholder lines.
	HelpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)
)

// StateStyle maps a run status to its display style. Terminal failure
// states (failed, blocked) share the error style.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "ok":
		return SuccessStyle
	case "in-progress":
		return WarningStyle
	case "failed", "blocked":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
