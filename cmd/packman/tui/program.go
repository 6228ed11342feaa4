package tui

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	pmprogress "github.com/jamesainslie/packman/pkg/packman/progress"
)

// Program runs a Model in the background while work reports into it.
type Program struct {
	program *tea.Program
	done    chan struct{}
	once    sync.Once
	err     error
}

// Start launches the view on out. onInterrupt runs on Ctrl+C.
func Start(title string, out io.Writer, onInterrupt func()) *Program {
	p := &Program{
		program: tea.NewProgram(NewModel(title, onInterrupt), tea.WithOutput(out)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, p.err = p.program.Run()
	}()
	return p
}

// Progress returns a callback that moves label's bar.
func (p *Program) Progress(label string) pmprogress.Func {
	p.program.Send(StepProgressMsg{Label: label})
	return func(f float64) {
		p.program.Send(StepProgressMsg{Label: label, Percent: f})
	}
}

// Finish settles label's line.
func (p *Program) Finish(label string, status Status, detail string) {
	p.program.Send(StepDoneMsg{Label: label, Status: status, Detail: detail})
}

// Note prints text below the lines.
func (p *Program) Note(text string) {
	p.program.Send(NoteMsg(text))
}

// Wait renders the final state and stops the view.
func (p *Program) Wait() error {
	p.once.Do(func() { p.program.Send(FinishMsg{}) })
	<-p.done
	return p.err
}
