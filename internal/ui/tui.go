// ABOUTME: TUI initialization
// ABOUTME: Wraps the bubbletea program for the voice client
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a new TUI model
func NewModel(controls Controls) Model {
	return Model{
		controls: controls,
	}
}

// New creates the TUI program; callers feed it StatusMsg and TranscriptMsg via Send
func New(controls Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
