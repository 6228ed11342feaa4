package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/packman/pkg/packman/output"
)

// Status is the state of one line of the view.
type Status int

const (
	Running Status = iota
	Done
	Skipped
	Failed
)

func (s Status) marker() string {
	switch s {
	case Done:
		return output.MarkDone
	case Skipped:
		return output.MarkSkipped
	case Failed:
		return output.MarkFailed
	default:
		return " "
	}
}

// StepProgressMsg reports progress of a line, adding the line on first
// use.
type StepProgressMsg struct {
	Label   string
	Percent float64
}

// StepDoneMsg settles a line.
type StepDoneMsg struct {
	Label  string
	Status Status
	Detail string
}

// NoteMsg adds a line of text below the steps.
type NoteMsg string

// FinishMsg ends the program once every message before it is rendered.
type FinishMsg struct{}

type step struct {
	label   string
	percent float64
	status  Status
	detail  string
}

// Model is the batch progress view.
type Model struct {
	title   string
	steps   []*step
	index   map[string]*step
	notes   []string
	bar     progress.Model
	spinner spinner.Model
	width   int

	// onInterrupt runs when the user presses Ctrl+C. The view keeps
	// running until the work behind it has rolled back and sends
	// FinishMsg.
	onInterrupt func()
	interrupted bool
	finished    bool
}

// NewModel returns an empty view. onInterrupt may be nil.
func NewModel(title string, onInterrupt func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		title:       title,
		index:       make(map[string]*step),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		spinner:     s,
		width:       80,
		onInterrupt: onInterrupt,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) step(label string) *step {
	s, ok := m.index[label]
	if !ok {
		s = &step{label: label}
		m.index[label] = s
		m.steps = append(m.steps, s)
	}
	return s
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, nil

	case StepProgressMsg:
		s := m.step(msg.Label)
		if msg.Percent > s.percent {
			s.percent = min(msg.Percent, 1)
		}
		return m, nil

	case StepDoneMsg:
		s := m.step(msg.Label)
		s.status = msg.Status
		s.detail = msg.Detail
		if msg.Status == Done {
			s.percent = 1
		}
		return m, nil

	case NoteMsg:
		m.notes = append(m.notes, string(msg))
		return m, nil

	case FinishMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the view.
func (m Model) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(titleStyle.Render(m.title))
		b.WriteString("\n")
	}

	labelWidth := 0
	for _, s := range m.steps {
		labelWidth = max(labelWidth, lipgloss.Width(s.label))
	}
	labelWidth = min(labelWidth, max(m.width/2, 10))

	for _, s := range m.steps {
		label := labelStyle.Width(labelWidth + 1).Render(truncate(s.label, labelWidth))
		if s.status == Running {
			marker := m.spinner.View()
			if m.finished {
				marker = " "
			}
			fmt.Fprintf(&b, "%s %s %s %3.0f%%\n", marker, label, m.bar.ViewAs(s.percent), s.percent*100)
			continue
		}
		line := s.status.marker() + " " + label
		if s.detail != "" {
			style := detailStyle
			if s.status == Failed {
				style = errorStyle
			}
			line += " " + style.Render(s.detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	for _, note := range m.notes {
		b.WriteString(note)
		b.WriteString("\n")
	}
	if m.interrupted && !m.finished {
		b.WriteString(mutedStyle.Render("cancelling, rolling back..."))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
