package core

import (
	"strings"
)

// columnAliases maps normalized header text to canonical columns.
var columnAliases = map[string]Column{
	"nombre":   ColumnName,
	"name":     ColumnName,
	"producto": ColumnName,
	"product":  ColumnName,
	"item":     ColumnName,

	"precio": ColumnPrice,
	"price":  ColumnPrice,
	"costo":  ColumnPrice,
	"cost":   ColumnPrice,
	"valor":  ColumnPrice,

	"categoria": ColumnCategory,
	"category":  ColumnCategory,
	"tipo":      ColumnCategory,

	"descripcion": ColumnDescription,
	"description": ColumnDescription,
	"desc":        ColumnDescription,

	"disponible": ColumnAvailable,
	"available":  ColumnAvailable,
	"activo":     ColumnAvailable,
	"stock":      ColumnAvailable,
}

// requiredColumns must be present in a header row.
var requiredColumns = []Column{ColumnName, ColumnPrice}

// ColumnForHeader resolves a header cell to its canonical column.
// Matching ignores case and accents.
func ColumnForHeader(h string) (Column, bool) {
	c, ok := columnAliases[NormalizeHeader(h)]
	return c, ok
}

// IsHeaderRow reports whether any cell of the row names a known column.
func IsHeaderRow(cells []string) bool {
	for _, c := range cells {
		if _, ok := ColumnForHeader(c); ok {
			return true
		}
	}
	return false
}

// FatalParseError is a ParseError that makes the whole source unusable,
// such as a header row without a required column.
type FatalParseError struct {
	ParseError
	Err error
}

func (e *FatalParseError) Error() string {
	return e.ParseError.Error()
}

func (e *FatalParseError) Unwrap() error {
	return e.Err
}

// BuildRows turns tabular records (CSV lines or worksheet rows) into RawRows.
//
// The first non-blank record is the header when IsHeaderRow accepts it;
// otherwise every record is positional in PositionalColumns order. Blank
// records are skipped. Row indexes are 1-based positions in records.
// A header missing a required column returns an input error wrapping a
// *FatalParseError and no rows.
func BuildRows(records [][]string, sep string) ([]RawRow, error) {
	start := 0
	for start < len(records) && isBlankRecord(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, inputError("parse", ErrEmptyFile)
	}

	columns := PositionalColumns
	if IsHeaderRow(records[start]) {
		header := records[start]
		var missing []string
		columns, missing = mapHeader(header)
		if len(missing) > 0 {
			pe := NewParseError(start+1, strings.Join(header, sep),
				"missing required column: "+strings.Join(missing, ", "))
			return nil, inputError("parse header", &FatalParseError{
				ParseError: pe,
				Err:        ErrMissingColumn,
			})
		}
		start++
	}

	rows := make([]RawRow, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if isBlankRecord(rec) {
			continue
		}
		row := RawRow{Index: i + 1, Raw: strings.Join(rec, sep)}
		for j, v := range rec {
			if j >= len(columns) || columns[j] == "" {
				continue
			}
			if _, seen := row.Get(columns[j]); seen {
				continue
			}
			row.Cells = append(row.Cells, Cell{Column: columns[j], Value: v})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// mapHeader returns the column for each header position ("" for unknown
// headers) and the names of required columns that are absent.
func mapHeader(header []string) ([]Column, []string) {
	columns := make([]Column, len(header))
	found := make(map[Column]bool, len(header))
	for i, h := range header {
		if c, ok := ColumnForHeader(h); ok {
			columns[i] = c
			found[c] = true
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if !found[c] {
			missing = append(missing, string(c))
		}
	}
	return columns, missing
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}
