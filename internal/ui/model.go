// ABOUTME: Bubbletea model for the call TUI
// ABOUTME: Defines call status state and update logic
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mokvoice/voicelink-go/pkg/voicelink"
)

// Model represents the TUI state
type Model struct {
	// Call
	callID     string
	endpoint   string
	sampleRate int
	state    string
	strategy string
	ended    string
	lastErr  string

	// Liveness
	heartbeat string
	linkLost  bool

	// Traffic
	stats      voicelink.Stats
	updates    int
	lastUpdate string

	// Debug
	showDebug bool

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderCall()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders call and heartbeat status
func (m Model) renderHeader() string {
	linkIcon := "✓"
	linkText := m.heartbeat
	if m.linkLost {
		linkIcon = "⚠"
		linkText = "Reconnecting..."
	}
	if m.state != voicelink.StateActive.String() {
		linkIcon = "✗"
		linkText = "Offline"
	}

	return fmt.Sprintf(`┌─ voicelink ──────────────────────────────────────────┐
│ Call:   %-45s │
│ State:  %-45s │
│ Link:   %s %-43s │
├──────────────────────────────────────────────────────┤
`, truncate(m.callID, 45), m.state, linkIcon, truncate(linkText, 43))
}

// renderCall renders delivery and update information
func (m Model) renderCall() string {
	s := fmt.Sprintf("│ Endpoint: %-42s │\n", truncate(m.endpoint, 42))
	s += fmt.Sprintf("│ Delivery: %-42s │\n", m.strategy)

	if m.lastUpdate != "" {
		s += fmt.Sprintf("│ Update:   %-42s │\n", truncate(m.lastUpdate, 42))
	}
	if m.ended != "" {
		s += fmt.Sprintf("│ Ended:    %-42s │\n", truncate(m.ended, 42))
	}
	if m.lastErr != "" {
		s += fmt.Sprintf("│ Error:    %-42s │\n", truncate(m.lastErr, 42))
	}

	return s
}

// renderStats renders traffic statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ TX: %-10s RX: %-10s Dropped: %-14d │
│ Time: %-10s Updates: %-10d Underrun: %-6s │
│                                                      │
`, formatBytes(m.stats.SentBytes), formatBytes(m.stats.ReceivedBytes), m.stats.DroppedBlocks,
		formatDuration(m.stats.Duration), m.updates, formatDuration(underrunTime(m.stats.UnderrunSamples, m.sampleRate)))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ s:Hang up  d:Debug  q:Quit                           │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Captured blocks: %-33d │
│   Received blocks: %-33d │
│   Underrun samples: %-32d │
`, m.stats.CapturedBlocks, m.stats.ReceivedBlocks, m.stats.UnderrunSamples)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			m.controls.requestQuit()
		}
		return m, tea.Quit
	case "s":
		if m.controls != nil {
			m.controls.requestStop()
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
		if msg.State != voicelink.StateActive.String() {
			m.linkLost = false
		}
	}
	if msg.Strategy != "" {
		m.strategy = msg.Strategy
	}
	if msg.LinkLost != nil {
		m.linkLost = *msg.LinkLost
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
		m.heartbeat = msg.Stats.Heartbeat.String()
	}
	if msg.Update != "" {
		m.updates++
		m.lastUpdate = msg.Update
	}
	if msg.Ended != nil {
		m.ended = fmt.Sprintf("code %d %s", msg.Ended.Code, msg.Ended.Reason)
	}
	if msg.Error != "" {
		m.lastErr = msg.Error
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	State    string
	Strategy string
	LinkLost *bool
	Stats    *voicelink.Stats
	Update   string
	Ended    *voicelink.EndInfo
	Error    string
}

// Utility functions
func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func underrunTime(samples uint64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
