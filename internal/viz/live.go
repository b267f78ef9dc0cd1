// Package viz renders run history in the terminal: static ascii charts
// for completed runs and a live view that steps the simulation under a
// bubbletea event loop.
package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/therm"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model drives one simulation loop interactively. Each UI tick advances
// one simulation step until the run completes.
type Model struct {
	loop    *sim.Loop
	tMax    float64
	variant string

	running  bool
	done     bool
	err      error
	meanHist []float64
	cmdHist  []float64
	last     *therm.Record
}

func NewModel(loop *sim.Loop, variant string, tMax float64) Model {
	return Model{
		loop:     loop,
		tMax:     tMax,
		variant:  variant,
		running:  true,
		meanHist: make([]float64, 0, historyCapacity),
		cmdHist:  make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		}
	case TickMsg:
		if m.running && !m.done {
			m.step()
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Model) step() {
	if m.loop.Done() {
		m.done = true
		return
	}
	rec, err := m.loop.StepOnce(context.Background())
	if err != nil {
		m.err = err
		m.done = true
		return
	}
	m.last = rec
	m.meanHist = append(m.meanHist, therm.Temps(rec.Temps).Mean())
	if len(m.meanHist) > historyCapacity {
		m.meanHist = m.meanHist[1:]
	}
	m.cmdHist = append(m.cmdHist, float64(rec.Command))
	if len(m.cmdHist) > historyCapacity {
		m.cmdHist = m.cmdHist[1:]
	}
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("BATTERY THERMAL RUN ("+m.variant+")") + "\n")

	status := "RUNNING"
	if !m.running {
		status = "PAUSED"
	}
	if m.done {
		status = "DONE"
	}
	if m.err != nil {
		status = alertStyle.Render("FAILED: " + m.err.Error())
	}
	s.WriteString(status + "\n")

	if len(m.meanHist) > 1 {
		chart := asciigraph.Plot(m.meanHist,
			asciigraph.Height(8), asciigraph.Width(60),
			asciigraph.Caption("mean temperature, degC"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	if len(m.cmdHist) > 1 {
		chart := asciigraph.Plot(m.cmdHist,
			asciigraph.Height(4), asciigraph.Width(60),
			asciigraph.Caption("cooling command"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	if m.last != nil {
		s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.1fs", m.last.Time)) + "\n")
		s.WriteString(labelStyle.Render("Hottest zone") + m.tempValue(therm.Temps(m.last.Temps).Max()) + "\n")
		s.WriteString(labelStyle.Render("Command") + valueStyle.Render(fmt.Sprintf("%.3f", float64(m.last.Command))) + "\n")
		s.WriteString(labelStyle.Render("Heat source") + valueStyle.Render(string(m.last.Source)) + "\n")
		if w := m.loop.Warnings(); w.Any() {
			s.WriteString(labelStyle.Render("Warnings") + alertStyle.Render(
				fmt.Sprintf("fallbacks=%d safety=%d dt=%d", w.GenFallbacks, w.SafetyEvents, w.DtAdjustments)) + "\n")
		}
	}

	s.WriteString(helpStyle.Render("SPACE pause  Q quit"))
	return s.String()
}

func (m Model) tempValue(t float64) string {
	v := fmt.Sprintf("%.2f degC", t)
	if t > m.tMax {
		return alertStyle.Render(v)
	}
	return valueStyle.Render(v)
}

// RunLive blocks until the user quits or the run finishes and the user
// exits. The loop's history remains available afterwards.
func RunLive(loop *sim.Loop, variant string, tMax float64) error {
	p := tea.NewProgram(NewModel(loop, variant, tMax))
	_, err := p.Run()
	return err
}
