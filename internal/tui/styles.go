package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#A78BFA"}
	muted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	danger  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	success = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
)

type styles struct {
	Sidebar   lipgloss.Style
	Title     lipgloss.Style
	Label     lipgloss.Style
	Muted     lipgloss.Style
	Human     lipgloss.Style
	Assistant lipgloss.Style
	Connected lipgloss.Style
	Error     lipgloss.Style
	Input     lipgloss.Style
	Spinner   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Sidebar: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		Label:     lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(muted),
		Human:     lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(success).MarginTop(1),
		Connected: lipgloss.NewStyle().Foreground(success),
		Error:     lipgloss.NewStyle().Foreground(danger),
		Input: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(muted),
		Spinner: lipgloss.NewStyle().Foreground(accent),
	}
}
