// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the call UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user requests from the TUI to the application
type Controls struct {
	Stop chan struct{}
	Quit chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Stop: make(chan struct{}, 1),
		Quit: make(chan struct{}, 1),
	}
}

func (c *Controls) requestStop() {
	select {
	case c.Stop <- struct{}{}:
	default:
	}
}

func (c *Controls) requestQuit() {
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(callID, endpoint string, sampleRate int, controls *Controls) Model {
	return Model{
		callID:     callID,
		endpoint:   endpoint,
		sampleRate: sampleRate,
		state:     "idle",
		strategy:  "auto",
		heartbeat: "stopped",
		controls:  controls,
	}
}

// Run creates the TUI program; the caller starts it with Run
func Run(model Model) *tea.Program {
	return tea.NewProgram(model, tea.WithAltScreen())
}
