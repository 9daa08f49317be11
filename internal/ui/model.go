// ABOUTME: Bubbletea model for the voice client TUI
// ABOUTME: Maps keys to recording controls and renders status, meters and debug info
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/app"
	"github.com/Resonate-Protocol/ose-go/internal/player"
	"github.com/Resonate-Protocol/ose-go/internal/version"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	refreshInterval = 100 * time.Millisecond
	maxTranscripts  = 6
	volumeStep      = 5

	defaultErrorPrefix = "Uh oh!"

	// RMS of loud speech sits near 0.25, so meters saturate there
	meterScale = 4.0
)

// Controls are the actions and readouts the TUI drives.
// Actions run off the update loop since they may block on the network.
type Controls struct {
	Start func()
	Stop  func()
	Reset func()

	Gain        *player.Gain
	ErrorPrefix string // shown before error text; defaults to "Uh oh!"
	InputLevel  func() float64
	OutputLevel func() float64
	Stats       func() DebugStats
}

// DebugStats is shown in the debug panel
type DebugStats struct {
	FramesSent     int64
	FramesDropped  int64
	UnitsScheduled int64
	Interruptions  int64
	ActiveUnits    int
}

// StatusMsg carries a controller status change
type StatusMsg struct {
	Status app.Status
}

// TranscriptMsg carries transcription text
type TranscriptMsg struct {
	Role string
	Text string
}

type tickMsg time.Time

// Model represents the TUI state
type Model struct {
	controls Controls

	status app.Status

	inputLevel  float64
	outputLevel float64
	stats       DebugStats

	transcripts []string
	showDebug   bool

	width  int
	height int
}

// Init starts the meter refresh
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
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
		m.status = msg.Status
	case TranscriptMsg:
		m.addTranscript(msg)
	case tickMsg:
		m.refresh()
		return m, tick()
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderMeters())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

// statusLine is the text of the status region
func (m Model) statusLine() string {
	if m.status.Error != "" {
		prefix := m.controls.ErrorPrefix
		if prefix == "" {
			prefix = defaultErrorPrefix
		}
		return prefix + " " + m.status.Error
	}
	return m.status.Status
}

func (m Model) renderHeader() string {
	rec := "Idle"
	if m.status.Recording {
		rec = "● Recording"
	}

	return fmt.Sprintf(`┌─ %-51s┐
│ %-52s │
│ Mic:     %-43s │
│ Session: %-43s │
├──────────────────────────────────────────────────────┤
`, version.Product+" ", truncate(m.statusLine(), 52), rec, m.status.State)
}

func (m Model) renderMeters() string {
	muteIcon := ""
	if m.muted() {
		muteIcon = " muted"
	}

	return fmt.Sprintf("│ In:     [%s]%-23s │\n"+
		"│ Out:    [%s]%-23s │\n"+
		"│ Volume: [%s] %3d%%%-18s │\n",
		meter(m.inputLevel), "",
		meter(m.outputLevel), "",
		renderBar(m.volume(), 100, 10), m.volume(), muteIcon)
}

func (m Model) renderDebug() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ Frames: sent %d dropped %d%-24s │\n", m.stats.FramesSent, m.stats.FramesDropped, "")
	s += fmt.Sprintf("│ Units:  scheduled %d active %d interrupts %d%-6s │\n",
		m.stats.UnitsScheduled, m.stats.ActiveUnits, m.stats.Interruptions, "")
	if len(m.transcripts) == 0 {
		s += "│ (no transcripts)                                     │\n"
	}
	for _, line := range m.transcripts {
		s += fmt.Sprintf("│ %-52s │\n", truncate(line, 52))
	}
	return s
}

// renderHelp lists the keys enabled in the current state
func (m Model) renderHelp() string {
	keys := "s:Talk  r:Reset"
	if m.status.Recording {
		keys = "x:Stop"
	}
	return fmt.Sprintf("├──────────────────────────────────────────────────────┤\n"+
		"│ %-52s │\n"+
		"└──────────────────────────────────────────────────────┘\n",
		keys+"  ↑/↓:Volume  m:Mute  d:Debug  q:Quit")
}

// handleKey handles keyboard input. Start and reset are disabled while
// recording; stop is disabled while not recording.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s", " ", "space":
		if m.status.Recording {
			return m, nil
		}
		return m, run(m.controls.Start)
	case "x":
		if !m.status.Recording {
			return m, nil
		}
		return m, run(m.controls.Stop)
	case "r":
		if m.status.Recording {
			return m, nil
		}
		m.transcripts = nil
		return m, run(m.controls.Reset)
	case "up":
		if g := m.controls.Gain; g != nil {
			g.SetVolume(g.Volume() + volumeStep)
		}
	case "down":
		if g := m.controls.Gain; g != nil {
			g.SetVolume(g.Volume() - volumeStep)
		}
	case "m":
		if g := m.controls.Gain; g != nil {
			g.SetMuted(!g.Muted())
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// run wraps an action in a command so it executes off the update loop
func run(action func()) tea.Cmd {
	if action == nil {
		return nil
	}
	return func() tea.Msg {
		action()
		return nil
	}
}

func (m *Model) refresh() {
	if m.controls.InputLevel != nil {
		m.inputLevel = m.controls.InputLevel()
	}
	if m.controls.OutputLevel != nil {
		m.outputLevel = m.controls.OutputLevel()
	}
	if m.controls.Stats != nil {
		m.stats = m.controls.Stats()
	}
}

func (m *Model) addTranscript(msg TranscriptMsg) {
	m.transcripts = append(m.transcripts, msg.Role+": "+msg.Text)
	if len(m.transcripts) > maxTranscripts {
		m.transcripts = m.transcripts[len(m.transcripts)-maxTranscripts:]
	}
}

func (m Model) volume() int {
	if m.controls.Gain == nil {
		return 100
	}
	return m.controls.Gain.Volume()
}

func (m Model) muted() bool {
	return m.controls.Gain != nil && m.controls.Gain.Muted()
}

// meter renders an RMS level as a 20 cell bar
func meter(level float64) string {
	pct := int(math.Min(level*meterScale, 1) * 100)
	return renderBar(pct, 100, 20)
}

func renderBar(value, max, width int) string {
	if value < 0 {
		value = 0
	}
	filled := (value * width) / max
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	return b.String()
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
