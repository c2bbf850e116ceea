package formats

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/menusync/internal/core"
)

// parseCSV reads delimited text. A malformed record becomes a ParseError
// for that record; the rest of the file still parses.
func parseCSV(ctx context.Context, data []byte, _ core.ParseOptions) ([]core.RawRow, []core.ParseError, error) {
	text := decodeText(data)
	sep := detectDelimiter(text)

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	// records[i] holds the record starting on line i+1; lines the reader
	// skips stay nil so row indexes are line numbers.
	var (
		records [][]string
		rowErrs []core.ParseError
	)
	for n := 0; ; n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			records = padTo(records, perr.StartLine)
			rowErrs = append(rowErrs, core.NewParseError(perr.StartLine, "", fmt.Sprintf("malformed record: %v", perr.Err)))
			continue
		}
		if err != nil {
			return nil, nil, core.InputError("parse csv", fmt.Errorf("%w: %v", core.ErrCorruptFile, err))
		}

		line, _ := r.FieldPos(0)
		records = padTo(records, line-1)
		records = append(records, rec)
	}

	rows, err := core.BuildRows(records, string(sep))
	if err != nil {
		return nil, nil, err
	}
	return rows, rowErrs, nil
}

// padTo extends records with nil entries up to length n.
func padTo(records [][]string, n int) [][]string {
	for len(records) < n {
		records = append(records, nil)
	}
	return records
}
