package formats

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/menusync/internal/core"
)

// fallbackSheets are tried, in order, when the first worksheet is empty
// and no sheet name was configured.
var fallbackSheets = []string{"Menu", "Menú", "Products", "Productos", "Inventory", "Inventario"}

// errSheetNotFound is wrapped when a configured sheet name does not exist.
var errSheetNotFound = fmt.Errorf("%w: sheet not found", core.ErrCorruptFile)

// workbook is the subset of a spreadsheet both xlsx and xls readers offer.
type workbook interface {
	sheetNames() []string
	rows(name string) ([][]string, error)
}

// parseWorkbook applies the tabular column contract to one worksheet:
// the configured sheet, else the first one with any content.
func parseWorkbook(ctx context.Context, wb workbook, opts core.ParseOptions) ([]core.RawRow, []core.ParseError, error) {
	names := wb.sheetNames()
	if len(names) == 0 {
		return nil, nil, core.InputError("parse spreadsheet", core.ErrEmptyFile)
	}

	candidates := []string{names[0]}
	if opts.Sheet != "" {
		if !slices.Contains(names, opts.Sheet) {
			return nil, nil, core.InputError("parse spreadsheet", fmt.Errorf("%w: %q", errSheetNotFound, opts.Sheet))
		}
		candidates = []string{opts.Sheet}
	} else {
		for _, n := range fallbackSheets {
			if n != names[0] && slices.Contains(names, n) {
				candidates = append(candidates, n)
			}
		}
	}

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		records, err := wb.rows(name)
		if err != nil {
			return nil, nil, core.InputError("read sheet "+name, fmt.Errorf("%w: %v", core.ErrCorruptFile, err))
		}
		if !hasContent(records) {
			continue
		}
		rows, err := core.BuildRows(records, ",")
		if err != nil {
			return nil, nil, err
		}
		return rows, nil, nil
	}
	return nil, nil, core.InputError("parse spreadsheet", core.ErrEmptyFile)
}

func hasContent(records [][]string) bool {
	for _, rec := range records {
		for _, v := range rec {
			if core.CleanCell(v) != "" {
				return true
			}
		}
	}
	return false
}

// xlsxBook reads Office Open XML workbooks.
type xlsxBook struct {
	f *excelize.File
}

func (b xlsxBook) sheetNames() []string { return b.f.GetSheetList() }

func (b xlsxBook) rows(name string) ([][]string, error) {
	return b.f.GetRows(name)
}

func parseXLSX(ctx context.Context, data []byte, opts core.ParseOptions) ([]core.RawRow, []core.ParseError, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, core.InputError("open xlsx", fmt.Errorf("%w: %v", core.ErrCorruptFile, err))
	}
	defer f.Close()

	return parseWorkbook(ctx, xlsxBook{f: f}, opts)
}

// xlsBook reads legacy BIFF workbooks.
type xlsBook struct {
	wb *xls.WorkBook
}

func (b xlsBook) sheetNames() []string {
	names := make([]string, 0, b.wb.NumSheets())
	for i := 0; i < b.wb.NumSheets(); i++ {
		if s := b.wb.GetSheet(i); s != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

func (b xlsBook) rows(name string) ([][]string, error) {
	for i := 0; i < b.wb.NumSheets(); i++ {
		sheet := b.wb.GetSheet(i)
		if sheet == nil || sheet.Name != name {
			continue
		}

		records := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			records = append(records, xlsRecord(xlsRow(sheet, r)))
		}
		return records, nil
	}
	return nil, errSheetNotFound
}

// xlsScanColumns is how many columns are read from a row that has cells but
// no ROW record, and therefore no known width.
const xlsScanColumns = 64

// xlsRow returns row i of the sheet, or nil when the sheet holds nothing for
// it. The decoder dereferences missing rows, so the lookup recovers.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsRecord flattens a row into cell strings with trailing blanks removed.
// A nil row is a blank record.
func xlsRecord(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	width := row.LastCol()
	if width <= 0 {
		width = xlsScanColumns
	}

	rec := make([]string, width)
	for c := 0; c < width; c++ {
		rec[c] = row.Col(c)
	}
	for len(rec) > 0 && rec[len(rec)-1] == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}

func parseXLS(ctx context.Context, data []byte, opts core.ParseOptions) (rows []core.RawRow, rowErrs []core.ParseError, err error) {
	// The BIFF decoder panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			rows, rowErrs = nil, nil
			err = core.InputError("open xls", fmt.Errorf("%w: %v", core.ErrCorruptFile, r))
		}
	}()

	wb, openErr := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if openErr != nil {
		return nil, nil, core.InputError("open xls", fmt.Errorf("%w: %v", core.ErrCorruptFile, openErr))
	}
	return parseWorkbook(ctx, xlsBook{wb: wb}, opts)
}
