package watchui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("99")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("226")
	errorColor   = lipgloss.Color("196")
	mutedColor   = lipgloss.Color("245")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			PaddingLeft(1).
			MarginBottom(1)

	collectionStyle = lipgloss.NewStyle().Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	statusStyles = map[string]lipgloss.Style{
		"completed":   lipgloss.NewStyle().Foreground(successColor).Bold(true),
		"in_progress": lipgloss.NewStyle().Foreground(primaryColor),
		"interrupted": lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		"idle":        lipgloss.NewStyle().Foreground(mutedColor),
	}

	errorStyle = lipgloss.NewStyle().Foreground(errorColor)

	skippedStyle = lipgloss.NewStyle().Foreground(warningColor)
)

func statusStyle(status string) lipgloss.Style {
	if style, ok := statusStyles[status]; ok {
		return style
	}
	return mutedStyle
}
