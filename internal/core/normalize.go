package core

import (
	"strings"
)

// Field length caps, in runes.
const (
	MaxNameLen        = 200
	MaxCategoryLen    = 50
	MaxDescriptionLen = 500
)

// Normalize validates one raw row and coerces it into a CatalogRecord.
// The returned error is always a ParseError scoped to the row.
func Normalize(row RawRow) (CatalogRecord, error) {
	field := func(c Column) string {
		v, _ := row.Get(c)
		return CleanCell(v)
	}

	name := field(ColumnName)
	if name == "" {
		return CatalogRecord{}, NewParseError(row.Index, row.Raw, "missing name")
	}

	rawPrice, _ := row.Get(ColumnPrice)
	price, err := ParsePrice(rawPrice)
	if err != nil {
		reason := err.Error()
		if p := CleanCell(rawPrice); p != "" {
			reason += ": " + truncateRunes(p, 40)
		}
		return CatalogRecord{}, NewParseError(row.Index, row.Raw, reason)
	}

	category := field(ColumnCategory)
	if category == "" {
		category = UncategorizedCategory
	}

	rec := CatalogRecord{
		Name:        truncateRunes(collapseSpaces(name), MaxNameLen),
		Price:       price,
		Category:    truncateRunes(category, MaxCategoryLen),
		Description: truncateRunes(field(ColumnDescription), MaxDescriptionLen),
		Available:   true,
	}
	if v, ok := row.Get(ColumnAvailable); ok {
		rec.Available = ParseAvailable(v)
	}
	return rec, nil
}

// NormalizeAll normalizes every row, collecting one ParseError per rejected
// row. Records keep row order.
func NormalizeAll(rows []RawRow) ([]CatalogRecord, []ParseError) {
	records := make([]CatalogRecord, 0, len(rows))
	var errs []ParseError
	for _, row := range rows {
		rec, err := Normalize(row)
		if err != nil {
			errs = append(errs, err.(ParseError))
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
