package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jamesainslie/packman/cmd/packman/tui"
	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/output"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// reporter shows per-package progress and outcomes.
type reporter interface {
	progress(label string) progress.Func
	finish(label string, status tui.Status, detail string)
	note(format string, args ...interface{})
	close() error
}

// newReporter returns the interactive view or plain lines. cancel runs
// when the user interrupts the interactive view.
func (a *app) newReporter(title string, cancel func()) reporter {
	if !a.interactive {
		return &lineReporter{out: a.out, quiet: a.quiet}
	}
	// Log records on stderr would tear the view.
	quietLog := a.log
	quietLog.ConsoleLevel = ""
	if err := logging.Init(quietLog); err != nil {
		return &lineReporter{out: a.out}
	}
	return &viewReporter{program: tui.Start(title, a.out, cancel), restore: func() { _ = logging.Init(a.log) }}
}

// lineReporter prints one line per finished package.
type lineReporter struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
}

func (r *lineReporter) progress(string) progress.Func { return progress.Noop }

func (r *lineReporter) finish(label string, status tui.Status, detail string) {
	if r.quiet && status != tui.Failed {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	marker := output.MarkDone
	switch status {
	case tui.Skipped:
		marker = output.MarkSkipped
	case tui.Failed:
		marker = output.MarkFailed
	}
	if detail == "" {
		fmt.Fprintf(r.out, "%s %s\n", marker, label)
		return
	}
	fmt.Fprintf(r.out, "%s %s: %s\n", marker, label, detail)
}

func (r *lineReporter) note(format string, args ...interface{}) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *lineReporter) close() error { return nil }

// viewReporter forwards to the Bubble Tea view.
type viewReporter struct {
	program *tui.Program
	restore func()
}

func (r *viewReporter) progress(label string) progress.Func {
	return progress.Throttle(r.program.Progress(label), operation.DefaultUpdateInterval/4)
}

func (r *viewReporter) finish(label string, status tui.Status, detail string) {
	r.program.Finish(label, status, detail)
}

func (r *viewReporter) note(format string, args ...interface{}) {
	r.program.Note(fmt.Sprintf(format, args...))
}

func (r *viewReporter) close() error {
	err := r.program.Wait()
	r.restore()
	return err
}

// reportResults settles every line of a batch. skipped describes
// packages the batch left unchanged.
func reportResults(r reporter, results installer.Results, label func(installer.Request) string, skipped string) {
	for _, res := range results {
		switch {
		case res.Err != nil:
			r.finish(label(res.Request), tui.Failed, errorDetail(res.Err))
		case res.Changed:
			r.finish(label(res.Request), tui.Done, "")
		default:
			r.finish(label(res.Request), tui.Skipped, skipped)
		}
	}
}

// errorDetail is the one-line description of a failed batch entry.
func errorDetail(err error) string {
	switch {
	case errors.Is(err, installer.ErrAbandoned):
		return "skipped, an interrupted operation must be recovered first"
	case errors.Is(err, operation.ErrCancelled):
		return "cancelled"
	default:
		return err.Error()
	}
}

// batchError summarises the failures of a batch for the exit status.
func batchError(results installer.Results) error {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d %s failed", failed, len(results), plural(len(results), "package", "packages"))
}

// pendingHint points at recover when a batch hit an interrupted operation.
func pendingHint(r reporter, results installer.Results) {
	for _, res := range results {
		if errors.Is(res.Err, operation.ErrStateFileExists) {
			r.note("A previously interrupted operation was detected; use 'packman recover' to roll it back.")
			return
		}
	}
}

// orphanHint mentions files left behind by uninstalls and upgrades.
func orphanHint(r reporter, inst *installer.Installer) {
	orphans, err := inst.Orphans()
	if err != nil || len(orphans) == 0 {
		return
	}
	r.note("You have %d orphaned %s; use 'packman clean' to resolve them.",
		len(orphans), plural(len(orphans), "file", "files"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
