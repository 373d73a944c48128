package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// TableWriter collects Tabular items and renders one bordered table on Close.
type TableWriter struct {
	w      io.Writer
	header []string
	rows   [][]string
}

// NewTableWriter creates a table writer.
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{w: w}
}

// Write adds a row. Items must implement Tabular.
func (w *TableWriter) Write(item any) error {
	t, ok := item.(Tabular)
	if !ok {
		return fmt.Errorf("table output: %T has no row form", item)
	}
	if w.header == nil {
		w.header = t.Header()
	}
	w.rows = append(w.rows, t.Row())
	return nil
}

// Close renders the table. Nothing is written when no rows were added.
func (w *TableWriter) Close() error {
	if len(w.rows) == 0 {
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(w.header...).
		Rows(w.rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w.w, t.Render())
	return err
}
