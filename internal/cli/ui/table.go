package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows of cells under a header line
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// TableOptions configures table behavior
type TableOptions struct {
	NoColor bool
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, headers []string, opts *TableOptions) *Table {
	noColor := false
	if opts != nil {
		noColor = opts.NoColor
	}

	return &Table{
		writer:  w,
		headers: headers,
		rows:    make([][]string, 0),
		noColor: noColor,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added so far
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = width(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && width(cell) > widths[i] {
				widths[i] = width(cell)
			}
		}
	}

	bold := newColor(t.noColor, color.Bold, color.FgCyan)
	for i, header := range t.headers {
		if i < len(t.headers)-1 {
			bold.Fprint(t.writer, padRight(header, widths[i]))
			fmt.Fprint(t.writer, "  ")
			continue
		}
		bold.Fprint(t.writer, header)
	}
	fmt.Fprintln(t.writer)

	gray := newColor(t.noColor, color.FgHiBlack)
	for i, w := range widths {
		gray.Fprint(t.writer, strings.Repeat("─", w))
		if i < len(widths)-1 {
			gray.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		n := len(row)
		if n > len(widths) {
			n = len(widths)
		}
		for i := 0; i < n; i++ {
			cell := row[i]
			if i < n-1 {
				cell = padRight(cell, widths[i]) + "  "
			}
			fmt.Fprint(t.writer, cell)
		}
		fmt.Fprintln(t.writer)
	}
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	rows    []kvRow
	noColor bool
}

type kvRow struct {
	key   string
	value string
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{
		writer:  w,
		rows:    make([]kvRow, 0),
		noColor: noColor,
	}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, kvRow{key: key, value: value})
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	if len(t.rows) == 0 {
		return
	}

	maxKeyWidth := 0
	for _, row := range t.rows {
		if width(row.key) > maxKeyWidth {
			maxKeyWidth = width(row.key)
		}
	}

	cyan := newColor(t.noColor, color.FgCyan)
	for _, row := range t.rows {
		cyan.Fprint(t.writer, padRight(row.key+":", maxKeyWidth+1))
		fmt.Fprintf(t.writer, " %s\n", row.value)
	}
}

// Header renders a styled title with an underline
func Header(w io.Writer, title string, noColor bool) {
	newColor(noColor, color.Bold, color.FgCyan).Fprintln(w, title)
	Divider(w, width(title), noColor)
}

// Divider renders a horizontal divider line, 80 columns wide by default
func Divider(w io.Writer, n int, noColor bool) {
	if n == 0 {
		n = 80
	}
	newColor(noColor, color.FgHiBlack).Fprintln(w, strings.Repeat("─", n))
}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

// padRight pads a string with spaces on the right to reach the target width
func padRight(s string, n int) string {
	if width(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-width(s))
}
