package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TableFormatter renders an aligned, styled table for terminals.
type TableFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, l *Listing) error {
	if l.Title != "" {
		w.WriteString(TitleStyle.Render(l.Title))
		w.WriteString("\n\n")
	}
	if len(l.Rows) == 0 {
		if l.Empty != "" {
			w.WriteString(MutedStyle.Render(l.Empty))
			w.WriteString("\n")
		}
		return nil
	}

	headers := l.Headers()
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range l.Rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	last := len(headers) - 1
	cells := make([]string, len(headers))
	for i, h := range headers {
		style := TableHeaderStyle
		if i < last {
			style = style.Width(widths[i] + 2)
		}
		cells[i] = style.Render(h)
	}
	w.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	w.WriteString("\n")

	for _, row := range l.Rows {
		for i, cell := range row {
			style := TableRowStyle
			if i < last {
				style = style.Width(widths[i] + 2)
			}
			cells[i] = style.Render(cell)
		}
		w.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		w.WriteString("\n")
	}
	return nil
}

// TSVFormatter writes tab-separated values with a header row.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, l *Listing) error {
	w.WriteString(strings.Join(l.Headers(), "\t"))
	w.WriteString("\n")
	for _, row := range l.Rows {
		w.WriteString(strings.Join(row, "\t"))
		w.WriteString("\n")
	}
	return nil
}

// CSVFormatter writes RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, l *Listing) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(l.Columns); err != nil {
		return err
	}
	for _, row := range l.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// MarkdownFormatter writes a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, l *Listing) error {
	headers := l.Headers()
	fmt.Fprintf(w, "| %s |\n", strings.Join(headers, " | "))
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, row := range l.Rows {
		escaped := make([]string, len(row))
		for i, cell := range row {
			escaped[i] = escapeMarkdownPipe(cell)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(escaped, " | "))
	}
	return nil
}

func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("table", func() Formatter { return &TableFormatter{} })
	Register("tsv", func() Formatter { return &TSVFormatter{} })
	Register("csv", func() Formatter { return &CSVFormatter{} })
	Register("markdown", func() Formatter { return &MarkdownFormatter{} })
}

var (
	_ Formatter = (*TableFormatter)(nil)
	_ Formatter = (*TSVFormatter)(nil)
	_ Formatter = (*CSVFormatter)(nil)
	_ Formatter = (*MarkdownFormatter)(nil)
)
