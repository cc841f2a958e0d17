package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	convActive  lipgloss.Style
	convIdle    lipgloss.Style
	userLabel   lipgloss.Style
	botLabel    lipgloss.Style
	typing      lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	errorStatus lipgloss.Style
}

func newTheme() theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		root: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		panelTitle:  lipgloss.NewStyle().Foreground(blue).Bold(true),
		convActive:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		convIdle:    lipgloss.NewStyle().Foreground(text),
		userLabel:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		botLabel:    lipgloss.NewStyle().Foreground(pink).Bold(true),
		typing:      lipgloss.NewStyle().Foreground(muted).Italic(true),
		inputPanel:  lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(blue),
		footer:      lipgloss.NewStyle().Foreground(muted),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
	}
}
