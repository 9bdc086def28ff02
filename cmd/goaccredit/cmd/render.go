package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// renderTable prints rows under a bold header with columns padded to their
// display width. A cell styler may colorize cells after padding.
func renderTable(w io.Writer, header []string, rows [][]string, style func(col int, cell string) string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && runewidth.StringWidth(cell) > widths[i] {
				widths[i] = runewidth.StringWidth(cell)
			}
		}
	}

	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = color.Bold.Sprint(runewidth.FillRight(h, widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))

	for _, row := range rows {
		cells = cells[:0]
		for i := range header {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			padded := runewidth.FillRight(cell, widths[i])
			if style != nil {
				padded = style(i, padded)
			}
			cells = append(cells, padded)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// statusColor colors a padded outcome or run status cell.
func statusColor(cell string) string {
	switch strings.TrimSpace(cell) {
	case "resolved", "finished":
		return color.Green.Sprint(cell)
	case "failed", "aborted":
		return color.Red.Sprint(cell)
	case "no_record", "running":
		return color.Yellow.Sprint(cell)
	default:
		return cell
	}
}

// truncate shortens s to at most n display columns.
func truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "...")
}
