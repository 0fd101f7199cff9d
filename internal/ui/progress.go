// Package ui renders live build progress in a terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tfjit/internal/pipeline"
)

type unitRow struct {
	name   string
	status string
	stage  pipeline.Stage
	failed bool
	done   bool
}

type progressModel struct {
	title   string
	events  <-chan pipeline.Event
	spinner spinner.Model
	prog    progress.Model
	rows    []unitRow
	index   map[string]int
	width   int
	done    bool
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a model listing units with their current stage.
// It quits once events is closed.
func NewProgressModel(title string, units []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	rows := make([]unitRow, len(units))
	index := make(map[string]int, len(units))
	for i, u := range units {
		rows[i] = unitRow{name: u, status: "queued", stage: pipeline.StageQueued}
		index[u] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		rows:    rows,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(pipeline.Event(msg)), m.listen())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = max(msg.Width-4, 10)
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	header := fmt.Sprintf("%s %s", m.spinner.View(), m.title)
	if m.done {
		header = "done: " + m.title
	}
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7")).Render(header))
	b.WriteString("\n\n")

	const statusWidth = 10
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, r := range m.rows {
		status := styleStatus(r).Render(fmt.Sprintf("%*s", statusWidth, r.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(r.name, nameWidth))
	}
	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) apply(ev pipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.Unit]
	if !ok {
		return nil
	}
	r := &m.rows[idx]
	r.stage = ev.Stage
	switch ev.Status {
	case pipeline.StatusDone:
		r.status, r.done = "done", true
	case pipeline.StatusError:
		r.status, r.failed, r.done = "error", true, true
	case pipeline.StatusWorking:
		r.status = string(ev.Stage)
	case pipeline.StatusQueued:
		r.status = "queued"
	}
	return m.prog.SetPercent(m.fraction())
}

// fraction weighs finished units fully and running ones by stage.
func (m *progressModel) fraction() float64 {
	total := 0.0
	for _, r := range m.rows {
		if r.done {
			total++
			continue
		}
		total += stageWeight(r.stage)
	}
	return total / float64(len(m.rows))
}

func stageWeight(s pipeline.Stage) float64 {
	switch s {
	case pipeline.StageCache:
		return 0.05
	case pipeline.StageLiveness:
		return 0.15
	case pipeline.StageLower:
		return 0.35
	case pipeline.StageBackend:
		return 0.6
	case pipeline.StageStackMap:
		return 0.8
	case pipeline.StageEmit:
		return 0.9
	default:
		return 0
	}
}

func styleStatus(r unitRow) lipgloss.Style {
	switch {
	case r.failed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case r.done:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case r.stage != pipeline.StageQueued:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
