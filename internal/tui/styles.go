package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusCanceled = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	// Clarify view
	stepTitleStyle = lipgloss.NewStyle().Bold(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("81"))

	cursorStyle = lipgloss.NewStyle().Reverse(true)

	editBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("57")).
			Padding(0, 1)
)

// placeholders the templates understand. Highlighting is literal
// substring styling; nothing here validates or interprets them.
var placeholders = []string{"{task}", "{previous}", "{chain_dir}"}

func highlightPlaceholders(s string) string {
	for _, p := range placeholders {
		s = strings.ReplaceAll(s, p, placeholderStyle.Render(p))
	}
	return s
}
