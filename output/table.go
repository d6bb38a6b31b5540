package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// Align is the horizontal alignment of a table column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table is a grid of cells with a header row. Columns without an entry in
// Align are left aligned.
type Table struct {
	Headers []string
	Rows    [][]string
	Align   []Align
}

func (t Table) align(col int) Align {
	if col < len(t.Align) {
		return t.Align[col]
	}
	return AlignLeft
}

// Render draws the table with a rounded border for terminals.
func (t Table) Render() string {
	border := lipgloss.NewStyle().Faint(true)
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(border).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cell
			if row == table.HeaderRow {
				style = header
			}
			if t.align(col) == AlignRight {
				return style.Align(lipgloss.Right)
			}
			return style
		}).
		String()
}

// Plain lays the table out with spaces only, for pipes and files. Cells
// must not carry escape sequences.
func (t Table) Plain() string {
	widths := make([]int, len(t.Headers))
	measure := func(row []string) {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}
	measure(t.Headers)
	for _, row := range t.Rows {
		measure(row)
	}

	var sb strings.Builder
	line := func(row []string) {
		cells := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(row) {
				c = row[i]
			}
			if t.align(i) == AlignRight {
				cells[i] = PadLeft(c, widths[i])
			} else {
				cells[i] = Pad(c, widths[i])
			}
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		sb.WriteByte('\n')
	}
	line(t.Headers)
	for _, row := range t.Rows {
		line(row)
	}
	return sb.String()
}

// Pad fills s with spaces on the right up to width display cells.
func Pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// PadLeft fills s with spaces on the left up to width display cells.
func PadLeft(s string, width int) string {
	return runewidth.FillLeft(s, width)
}

// Truncate shortens s to at most width display cells, marking the cut.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
