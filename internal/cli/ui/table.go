package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows in aligned columns under a colored header
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	head := newColor(t.noColor, color.Bold, color.FgCyan)
	rule := newColor(t.noColor, color.FgHiBlack)

	for i, h := range t.headers {
		head.Fprint(t.writer, pad(h, widths[i], i == len(widths)-1))
		t.gap(i)
	}
	fmt.Fprintln(t.writer)

	for i, w := range widths {
		rule.Fprint(t.writer, strings.Repeat("─", w))
		t.gap(i)
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprint(t.writer, pad(cell, widths[i], i == len(widths)-1))
			t.gap(i)
		}
		fmt.Fprintln(t.writer)
	}
}

func (t *Table) gap(i int) {
	if i < len(t.headers)-1 {
		fmt.Fprint(t.writer, "  ")
	}
}

// pad right-pads s to width; the last column is left unpadded
func pad(s string, width int, last bool) string {
	n := utf8.RuneCountInString(s)
	if last || n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// List writes items numbered from 1
func List(w io.Writer, items []string, noColor bool) {
	num := newColor(noColor, color.FgCyan)
	width := len(fmt.Sprint(len(items)))
	for i, item := range items {
		num.Fprintf(w, "%*d. ", width, i+1)
		fmt.Fprintln(w, item)
	}
}

// Header writes a bold title underlined to its width
func Header(w io.Writer, title string, noColor bool) {
	newColor(noColor, color.Bold, color.FgCyan).Fprintln(w, title)
	newColor(noColor, color.FgHiBlack).Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}
