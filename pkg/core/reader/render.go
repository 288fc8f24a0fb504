package reader

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// missingCell is how an absent value appears in rendered tables.
const missingCell = "NaN"

// RenderTable lays the frame out as aligned plain text, header first, with
// every row and column present. Cells are right-justified; withIndex adds a
// left-justified 0-based row label column.
func RenderTable(f *Frame, withIndex bool) string {
	widths := make([]int, len(f.Columns))
	for c, name := range f.Columns {
		widths[c] = utf8.RuneCountInString(name)
		for _, row := range f.Rows {
			if w := utf8.RuneCountInString(cellText(row[c])); w > widths[c] {
				widths[c] = w
			}
		}
	}
	indexWidth := 0
	if withIndex && len(f.Rows) > 0 {
		indexWidth = len(strconv.Itoa(len(f.Rows) - 1))
	}

	var b strings.Builder
	writeLine := func(label string, cells []string) {
		parts := make([]string, 0, len(cells)+1)
		if withIndex {
			parts = append(parts, padRight(label, indexWidth))
		}
		for c, cell := range cells {
			parts = append(parts, padLeft(cell, widths[c]))
		}
		b.WriteString(strings.Join(parts, " "))
	}

	writeLine("", f.Columns)
	for i, row := range f.Rows {
		b.WriteByte('\n')
		cells := make([]string, len(row))
		for c, v := range row {
			cells[c] = cellText(v)
		}
		writeLine(strconv.Itoa(i), cells)
	}
	return b.String()
}

func cellText(v string) string {
	if v == "" {
		return missingCell
	}
	// embedded newlines would break row alignment and the one-row-per-line contract
	return strings.Join(strings.Fields(strings.ReplaceAll(v, "\n", " ")), " ")
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// describe renders the structured workbook analysis for the selected sheet.
func describe(sheetName string, f *Frame) string {
	var b strings.Builder
	b.WriteString("Fund Portfolio Analysis\n\n")
	fmt.Fprintf(&b, "Sheet Name: %s\n\n", sheetName)

	b.WriteString("Column Mapping Analysis:\n")
	types := make([]string, len(f.Columns))
	for c, name := range f.Columns {
		types[c] = f.DataType(c)
		fmt.Fprintf(&b, "Column: %s\n", name)
		present := f.NonEmpty(c)
		if len(present) > 0 {
			samples := present
			if len(samples) > 3 {
				samples = samples[:3]
			}
			fmt.Fprintf(&b, "Data Type: %s\n", types[c])
			fmt.Fprintf(&b, "Sample Values: %s\n", strings.Join(samples, ", "))
			fmt.Fprintf(&b, "Total Non-null Values: %d\n", len(present))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nTotal Records: %d\n", len(f.Rows))
	for c, name := range f.Columns {
		if types[c] == TypeInt || types[c] == TypeFloat {
			fmt.Fprintf(&b, "%s Total: %s\n", name, f.Sum(c).String())
		}
	}

	b.WriteString("\nComplete Portfolio Data:\n")
	b.WriteString(RenderTable(f, false))
	return b.String()
}
