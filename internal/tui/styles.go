package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray

	// Input area
	styleInput = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	// Transcript
	styleUser = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleBot = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	styleButton = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleHint = lipgloss.NewStyle().
			Foreground(colorDim)

	// Status bar
	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)
)
