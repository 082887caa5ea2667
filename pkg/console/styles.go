package console

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	salmonPink = lipgloss.Color("#FFB3BA") // failures and prompts
	mintGreen  = lipgloss.Color("#A8E6CF") // success
	amber      = lipgloss.Color("#FFD580") // retries and skips
	mutedGray  = lipgloss.Color("#6B7280") // secondary text
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	okStyle = lipgloss.NewStyle().
		Foreground(mintGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	promptStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedGray).
			Padding(0, 1)
)
