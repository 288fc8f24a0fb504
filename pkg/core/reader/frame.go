package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Column data types reported in the mapping analysis.
const (
	TypeInt    = "int64"
	TypeFloat  = "float64"
	TypeObject = "object"
)

// maxHeaderScan bounds the header search to the first rows of a sheet.
const maxHeaderScan = 10

// headerTokens are column names that mark a holdings header row.
var headerTokens = map[string]bool{"isin": true, "name": true, "security": true, "market": true}

// Frame is a rectangular table: named columns and string cells, "" meaning missing.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// newFrame reads grid the way a header-aware table reader does: skip rows
// are dropped, the next row names the columns and everything after it is data.
func newFrame(grid [][]string, skip int) *Frame {
	if skip >= len(grid) {
		return &Frame{}
	}
	header := grid[skip]
	data := grid[skip+1:]

	width := len(header)
	for _, row := range data {
		if len(row) > width {
			width = len(row)
		}
	}

	f := &Frame{Columns: columnNames(header, width)}
	for _, row := range data {
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = strings.TrimSpace(row[i])
		}
		f.Rows = append(f.Rows, cells)
	}
	return f
}

// columnNames names blank headers "Unnamed: i" and suffixes duplicates with ".n".
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

// hasHeaderToken reports whether any column name is a known header token.
func (f *Frame) hasHeaderToken() bool {
	for _, c := range f.Columns {
		if headerTokens[strings.ToLower(strings.TrimSpace(c))] {
			return true
		}
	}
	return false
}

// detectHeader tries skip offsets 0..9 in order and returns the first frame
// whose columns carry a header token. When none does, the zero-skip frame is
// returned with found == false.
func detectHeader(grid [][]string) (frame *Frame, skip int, found bool) {
	for k := 0; k < maxHeaderScan && k < len(grid); k++ {
		f := newFrame(grid, k)
		if f.hasHeaderToken() {
			return f, k, true
		}
	}
	return newFrame(grid, 0), 0, false
}

// dropEmpty removes fully empty rows, then columns with no value left.
func (f *Frame) dropEmpty() *Frame {
	var rows [][]string
	for _, row := range f.Rows {
		if !allEmpty(row) {
			rows = append(rows, row)
		}
	}

	var keep []int
	for c := range f.Columns {
		for _, row := range rows {
			if row[c] != "" {
				keep = append(keep, c)
				break
			}
		}
	}

	out := &Frame{Columns: make([]string, len(keep))}
	for i, c := range keep {
		out.Columns[i] = f.Columns[c]
	}
	for _, row := range rows {
		cells := make([]string, len(keep))
		for i, c := range keep {
			cells[i] = row[c]
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

// Values returns column c's cells, missing ones included.
func (f *Frame) Values(c int) []string {
	vals := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		vals[i] = row[c]
	}
	return vals
}

// NonEmpty returns column c's present cells in row order.
func (f *Frame) NonEmpty(c int) []string {
	var vals []string
	for _, row := range f.Rows {
		if row[c] != "" {
			vals = append(vals, row[c])
		}
	}
	return vals
}

// DataType infers column c's type. Integer columns with gaps widen to float64.
func (f *Frame) DataType(c int) string {
	values := f.Values(c)
	present, ints, nums := 0, 0, 0
	for _, v := range values {
		if v == "" {
			continue
		}
		present++
		n := normalizeNumber(v)
		if _, err := strconv.ParseInt(n, 10, 64); err == nil {
			ints++
			nums++
			continue
		}
		if _, err := decimal.NewFromString(n); err == nil {
			nums++
		}
	}
	switch {
	case present == 0:
		return TypeFloat
	case ints == present && present == len(values):
		return TypeInt
	case nums == present:
		return TypeFloat
	default:
		return TypeObject
	}
}

// Sum adds column c's present values. Only meaningful for numeric columns.
func (f *Frame) Sum(c int) decimal.Decimal {
	total := decimal.Zero
	for _, v := range f.NonEmpty(c) {
		d, err := decimal.NewFromString(normalizeNumber(v))
		if err != nil {
			continue
		}
		total = total.Add(d)
	}
	return total
}

// normalizeNumber strips thousands separators and surrounding spaces.
func normalizeNumber(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), ",", "")
}

func allEmpty(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
