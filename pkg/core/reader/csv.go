package reader

import (
	"encoding/csv"
	"os"
	"strings"

	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
)

// readCSV renders a delimited file as a full table with a row index; the
// first line is the header.
func (r *Reader) readCSV(path string) (string, error) {
	r.logger.Info("Processing CSV file")

	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.ReadError, err, "failed to open %s", path)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	grid, err := cr.ReadAll()
	if err != nil {
		return "", errs.Wrap(errs.ReadError, err, "failed to parse csv %s", path)
	}
	if len(grid) > 0 && len(grid[0]) > 0 {
		grid[0][0] = trimBOM(grid[0][0])
	}

	frame := newFrame(grid, 0)
	r.logger.Info("Processed records from CSV", zap.Int("records", len(frame.Rows)))
	return RenderTable(frame, true), nil
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
