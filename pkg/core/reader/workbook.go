package reader

import (
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
)

// holdingsSheet is the sheet index holdings live on; the first sheet is
// normally a cover or summary page.
const holdingsSheet = 1

// workbook is the minimal view of a multi-sheet spreadsheet.
type workbook interface {
	SheetNames() []string
	Rows(index int) ([][]string, error)
	Close() error
}

func (r *Reader) readWorkbook(path, ext string) (text string, err error) {
	r.logger.Info("Processing Excel file")

	// legacy sheets are decoded lazily by SheetNames, which cannot return an error
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = errs.Wrap(errs.ReadError, fmt.Errorf("%v", rec), "panic while reading workbook %s", path)
		}
	}()

	wb, err := openWorkbook(path, ext)
	if err != nil {
		return "", err
	}
	defer wb.Close()

	names := wb.SheetNames()
	r.logger.Info("Found sheets", zap.Int("count", len(names)), zap.Strings("sheets", names))
	if len(names) <= holdingsSheet {
		return "", errs.New(errs.StructuralError, "Excel file must have at least two sheets")
	}

	sheetName := names[holdingsSheet]
	r.logger.Info("Processing sheet", zap.String("sheet", sheetName))

	grid, err := wb.Rows(holdingsSheet)
	if err != nil {
		return "", errs.Wrap(errs.ReadError, err, "failed to read sheet %q", sheetName)
	}

	frame, skip, found := detectHeader(grid)
	if found {
		r.logger.Info("Detected header row", zap.Int("skip_rows", skip))
	} else {
		r.logger.Warn("No header row matched within the first rows, reading without skipping",
			zap.Int("scanned", maxHeaderScan))
	}
	frame = frame.dropEmpty()

	text = describe(sheetName, frame)
	r.logger.Info("Processed records from Excel sheet", zap.Int("records", len(frame.Rows)))
	return text, nil
}

func openWorkbook(path, ext string) (wb workbook, err error) {
	// legacy BIFF decoding panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			wb = nil
			err = errs.Wrap(errs.ReadError, fmt.Errorf("%v", rec), "panic while opening workbook %s", path)
		}
	}()

	if ext == ExtXLS {
		f, err := xls.Open(path, "utf-8")
		if err != nil {
			return nil, errs.Wrap(errs.ReadError, err, "failed to open workbook %s", path)
		}
		if f == nil {
			return nil, errs.New(errs.ReadError, "no workbook stream in %s", path)
		}
		return &xlsBook{f: f}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ReadError, err, "failed to open workbook %s", path)
	}
	return &xlsxBook{f: f}, nil
}

type xlsxBook struct {
	f *excelize.File
}

func (b *xlsxBook) SheetNames() []string { return b.f.GetSheetList() }

// Rows returns raw cell values so numbers keep full precision instead of their display format.
func (b *xlsxBook) Rows(index int) ([][]string, error) {
	names := b.f.GetSheetList()
	if index >= len(names) {
		return nil, fmt.Errorf("sheet index %d out of range", index)
	}
	return b.f.GetRows(names[index], excelize.Options{RawCellValue: true})
}

func (b *xlsxBook) Close() error { return b.f.Close() }

type xlsBook struct {
	f *xls.WorkBook
}

func (b *xlsBook) SheetNames() []string {
	names := make([]string, 0, b.f.NumSheets())
	for i := 0; i < b.f.NumSheets(); i++ {
		if sheet := b.f.GetSheet(i); sheet != nil {
			names = append(names, sheet.Name)
		}
	}
	return names
}

func (b *xlsBook) Rows(index int) ([][]string, error) {
	return sheetGrid(index, func() xlsSheet {
		if sheet := b.f.GetSheet(index); sheet != nil {
			return biffSheet{sheet}
		}
		return nil
	})
}

func (b *xlsBook) Close() error { return nil }

// xlsRow is the part of a decoded BIFF row the grid conversion reads.
type xlsRow interface {
	FirstCol() int
	LastCol() int
	Col(i int) string
}

type xlsSheet interface {
	NumRows() int
	Row(i int) xlsRow
}

type biffSheet struct {
	s *xls.WorkSheet
}

func (b biffSheet) NumRows() int { return int(b.s.MaxRow) + 1 }

func (b biffSheet) Row(i int) xlsRow {
	if row := b.s.Row(i); row != nil {
		return row
	}
	return nil
}

// sheetGrid flattens the sheet returned by open into a dense grid. Missing
// rows become empty rows. A panic from open or the row walk is returned as
// an error.
func sheetGrid(index int, open func() xlsSheet) (grid [][]string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			grid = nil
			err = fmt.Errorf("panic while decoding sheet %d: %v", index, rec)
		}
	}()

	sheet := open()
	if sheet == nil {
		return nil, fmt.Errorf("sheet index %d out of range", index)
	}
	for i := 0; i < sheet.NumRows(); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		last := row.LastCol()
		if last < 0 {
			last = 0
		}
		cells := make([]string, last)
		for c := row.FirstCol(); c < last; c++ {
			if c >= 0 {
				cells[c] = row.Col(c)
			}
		}
		grid = append(grid, cells)
	}
	return grid, nil
}
