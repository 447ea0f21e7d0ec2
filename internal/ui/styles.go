// Package ui styles terminal output for the openhouse CLI.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// Styler renders text with or without color.
type Styler struct {
	Color bool
}

func NewStyler() Styler { return Styler{Color: ShouldUseColor()} }

func (s Styler) render(style lipgloss.Style, text string) string {
	if !s.Color {
		return text
	}
	return style.Render(text)
}

func (s Styler) Title(text string) string   { return s.render(titleStyle, text) }
func (s Styler) Success(text string) string { return s.render(successStyle, text) }
func (s Styler) Warn(text string) string    { return s.render(warnStyle, text) }
func (s Styler) Error(text string) string   { return s.render(errorStyle, text) }
func (s Styler) Muted(text string) string   { return s.render(mutedStyle, text) }
