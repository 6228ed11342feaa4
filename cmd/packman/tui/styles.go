// Package tui renders the progress of package batches (install,
// uninstall, recover) as a live Bubble Tea view: one line per package
// with a spinner and progress bar while it runs, and its outcome once it
// finishes.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/packman/pkg/packman/output"
)

var (
	titleStyle   = output.TitleStyle
	mutedStyle   = output.MutedStyle
	labelStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle  = output.MutedStyle.Italic(true)
	errorStyle   = output.ErrorStyle
	spinnerStyle = lipgloss.NewStyle().Foreground(output.ColorPrimary)
)
