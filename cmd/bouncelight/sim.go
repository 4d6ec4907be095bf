package main

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bouncelight/internal/button"
	"bouncelight/internal/motion"
	"bouncelight/internal/strip"
)

// simRedrawInterval is how often the simulator samples the tick loop.
const simRedrawInterval = time.Second / 30

// SimKeyMap defines the key bindings for the simulator.
type SimKeyMap struct {
	Toggle key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k SimKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k SimKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Toggle}, {k.Help, k.Quit}}
}

// DefaultSimKeyMap returns default key bindings. Terminals report key
// presses but not releases, so the button is a latch.
func DefaultSimKeyMap() SimKeyMap {
	return SimKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "enter"),
			key.WithHelp("space", "press/release button"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// latestSnapshot holds the newest snapshot for the UI goroutine.
type latestSnapshot struct {
	p atomic.Pointer[Snapshot]
}

func (l *latestSnapshot) Store(s Snapshot) { l.p.Store(&s) }

func (l *latestSnapshot) Load() (Snapshot, bool) {
	s := l.p.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// simTickMsg triggers a redraw from the latest snapshot.
type simTickMsg time.Time

func simTickCmd() tea.Cmd {
	return tea.Tick(simRedrawInterval, func(t time.Time) tea.Msg {
		return simTickMsg(t)
	})
}

// SimModel is the Bubble Tea model for the terminal simulator.
type SimModel struct {
	latch  *button.Latch
	latest *latestSnapshot
	length int

	snap       Snapshot
	have       bool
	explosions int

	keys  SimKeyMap
	help  help.Model
	width int
}

// NewSimModel creates a simulator view over the shared latch and snapshot.
func NewSimModel(latch *button.Latch, latest *latestSnapshot, length int) SimModel {
	return SimModel{
		latch:  latch,
		latest: latest,
		length: length,
		keys:   DefaultSimKeyMap(),
		help:   help.New(),
	}
}

func (m SimModel) Init() tea.Cmd {
	return simTickCmd()
}

func (m SimModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			m.latch.Toggle()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case simTickMsg:
		if snap, ok := m.latest.Load(); ok {
			// Counts explosions drawn, which can miss one shorter than a redraw.
			if snap.State.Mode == motion.Explode && (!m.have || m.snap.State.Mode != motion.Explode) {
				m.explosions++
			}
			m.snap = snap
			m.have = true
		}
		return m, simTickCmd()
	}

	return m, nil
}

var (
	simTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1d6ab1"))
	simLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	simStripStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	simPressStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#dc7f1f"))
	simOffPixel   = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render("○")
	simModeStyles = map[motion.Mode]lipgloss.Style{
		motion.Idle:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		motion.Accelerate: lipgloss.NewStyle().Foreground(lipgloss.Color("#1d6ab1")).Bold(true),
		motion.Friction:   lipgloss.NewStyle().Foreground(lipgloss.Color("#5f87af")),
		motion.Explode:    lipgloss.NewStyle().Foreground(lipgloss.Color("#dc7f1f")).Bold(true).Blink(true),
	}
)

// renderStrip draws one frame as a row of colored pixels.
func renderStrip(f strip.Frame) string {
	var b strings.Builder
	for i, p := range f.Pixels {
		if i > 0 {
			b.WriteByte(' ')
		}
		if p == strip.Off {
			b.WriteString(simOffPixel)
			continue
		}
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(p.String())).Render("●"))
	}
	return b.String()
}

func (m SimModel) View() string {
	var b strings.Builder

	b.WriteString(simTitleStyle.Render("bouncelight simulator"))
	b.WriteString("\n\n")

	frame := m.snap.Frame
	if !m.have {
		frame = strip.Frame{Pixels: make([]strip.RGB, m.length)}
	}
	b.WriteString(simStripStyle.Render(renderStrip(frame)))
	b.WriteString("\n\n")

	pressed, _ := m.latch.Read()
	btn := simLabelStyle.Render("released")
	if pressed {
		btn = simPressStyle.Render("PRESSED")
	}

	s := m.snap.State
	style, ok := simModeStyles[s.Mode]
	if !ok {
		style = simLabelStyle
	}
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		simLabelStyle.Render("mode"), style.Render(s.Mode.String()),
		simLabelStyle.Render("button"), btn)
	fmt.Fprintf(&b, "%s %8.2f px   %s %8.5f px/ms   %s %d/%d\n",
		simLabelStyle.Render("position"), s.Position,
		simLabelStyle.Render("speed"), s.Speed,
		simLabelStyle.Render("brightness"), frame.Brightness, strip.MaxBrightness)
	fmt.Fprintf(&b, "%s %d\n\n", simLabelStyle.Render("explosions seen"), m.explosions)

	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}
