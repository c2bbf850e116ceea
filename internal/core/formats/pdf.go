package formats

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/JonMunkholm/menusync/internal/core"
)

// menuLine matches "<name> - <description> $<price>" and "<name> $<price>".
// The price is captured loosely; the normalizer decides if it is valid.
var menuLine = regexp.MustCompile(`^(.+?)\s*\$\s*(\d[\d.,]*)\s*$`)

// descSeparator splits the name from an optional description.
var descSeparator = regexp.MustCompile(`\s+[-–—]\s+`)

func parsePDF(ctx context.Context, data []byte, _ core.ParseOptions) ([]core.RawRow, []core.ParseError, error) {
	pages, err := extractPages(ctx, data)
	if err != nil {
		return nil, nil, err
	}

	var lines []string
	for _, text := range pages {
		lines = append(lines, strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")...)
	}
	return parseMenuLines(lines)
}

// extractPages returns the plain text of every page in order.
func extractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = core.InputError("open pdf", fmt.Errorf("%w: %v", core.ErrCorruptFile, r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.InputError("open pdf", fmt.Errorf("%w: %v", core.ErrCorruptFile, err))
	}

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, core.InputError(fmt.Sprintf("extract page %d", i), fmt.Errorf("%w: %v", core.ErrCorruptFile, err))
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// parseMenuLines turns extracted text lines into rows. Row indexes are
// 1-based line numbers across all pages. Blank lines are skipped; any other
// line without a trailing "$<number>" is a ParseError.
func parseMenuLines(lines []string) ([]core.RawRow, []core.ParseError, error) {
	var (
		rows    []core.RawRow
		rowErrs []core.ParseError
		blank   = true
	)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blank = false

		m := menuLine.FindStringSubmatch(line)
		if m == nil {
			rowErrs = append(rowErrs, core.NewParseError(i+1, line, "no price found"))
			continue
		}

		row := core.RawRow{Index: i + 1, Raw: line}
		name, desc := m[1], ""
		if parts := descSeparator.Split(m[1], 2); len(parts) == 2 {
			name, desc = parts[0], parts[1]
		}
		row.Set(core.ColumnName, name)
		row.Set(core.ColumnPrice, m[2])
		if desc != "" {
			row.Set(core.ColumnDescription, desc)
		}
		rows = append(rows, row)
	}

	if blank {
		return nil, nil, core.InputError("parse pdf", fmt.Errorf("%w: no extractable text", core.ErrEmptyFile))
	}
	return rows, rowErrs, nil
}
