package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ParseOptions tunes a parse for one source.
type ParseOptions struct {
	// Sheet selects the worksheet of a spreadsheet; empty means the first.
	Sheet string
}

// Parser turns the raw bytes of one source into raw rows.
//
// Row-level problems are returned as ParseErrors and never abort the parse.
// The error result is reserved for failures that make the whole source
// unusable (corrupt file, missing required column); it is an input error.
type Parser interface {
	Parse(ctx context.Context, data []byte, opts ParseOptions) ([]RawRow, []ParseError, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, data []byte, opts ParseOptions) ([]RawRow, []ParseError, error)

func (f ParserFunc) Parse(ctx context.Context, data []byte, opts ParseOptions) ([]RawRow, []ParseError, error) {
	return f(ctx, data, opts)
}

var (
	registry   = make(map[Format]Parser)
	registryMu sync.RWMutex
)

// RegisterParser adds the parser for a format.
// Panics if the format is not supported or already registered.
func RegisterParser(format Format, p Parser) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if !slices.Contains(SupportedFormats, format) {
		panic(fmt.Sprintf("parser for unsupported format: %s", format))
	}
	if _, exists := registry[format]; exists {
		panic(fmt.Sprintf("parser already registered: %s", format))
	}
	registry[format] = p
}

// ParserFor returns the parser registered for a format.
func ParserFor(format Format) (Parser, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[format]
	if !ok {
		return nil, inputError("select parser", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format))
	}
	return p, nil
}

// RegisteredFormats returns the formats with a parser, sorted.
func RegisteredFormats() []Format {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Format, 0, len(registry))
	for f := range registry {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// ValidateRegistry checks that every supported format has a parser.
// Called once at startup so a missing import fails before serving traffic.
func ValidateRegistry() error {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var missing []string
	for _, f := range SupportedFormats {
		if _, ok := registry[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no parser registered for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// FormatInfo describes one accepted upload format.
type FormatInfo struct {
	Format      Format `json:"format"`
	Extension   string `json:"extension"`
	Description string `json:"description"`
	Example     string `json:"example_format"`
}

var formatInfo = map[Format]FormatInfo{
	FormatPDF: {
		Description: "PDF menu, one product per line ending in a price",
		Example:     "Product Name - Description $Price",
	},
	FormatXLSX: {
		Description: "Excel workbook with a header row naming at least the name and price columns",
		Example:     "Spreadsheet with headers, or name, price, category by position",
	},
	FormatXLS: {
		Description: "Legacy Excel workbook, same layout as .xlsx",
		Example:     "Spreadsheet with headers, or name, price, category by position",
	},
	FormatCSV: {
		Description: "Comma-separated values, same layout as .xlsx",
		Example:     "nombre,precio,categoria",
	},
}

// Capabilities lists what an upload or scheduled file may contain.
type Capabilities struct {
	Formats         []FormatInfo        `json:"formats"`
	RequiredColumns []Column            `json:"required_columns"`
	OptionalColumns []Column            `json:"optional_columns"`
	HeaderAliases   map[Column][]string `json:"header_aliases"`
	GoogleSheets    SheetsSupport       `json:"google_sheets"`
}

// SheetsSupport reports the state of the Google Sheets channel.
type SheetsSupport struct {
	Supported bool   `json:"supported"`
	Note      string `json:"note"`
}

// DescribeCapabilities reports the formats that have a registered parser, in
// display order, together with the header vocabulary.
func DescribeCapabilities() Capabilities {
	registryMu.RLock()
	var formats []FormatInfo
	for _, f := range SupportedFormats {
		if _, ok := registry[f]; !ok {
			continue
		}
		info := formatInfo[f]
		info.Format = f
		info.Extension = "." + string(f)
		formats = append(formats, info)
	}
	registryMu.RUnlock()

	aliases := make(map[Column][]string)
	for alias, c := range columnAliases {
		aliases[c] = append(aliases[c], alias)
	}
	for _, list := range aliases {
		sort.Strings(list)
	}

	var optional []Column
	for _, c := range []Column{ColumnName, ColumnPrice, ColumnCategory, ColumnDescription, ColumnAvailable} {
		if !slices.Contains(requiredColumns, c) {
			optional = append(optional, c)
		}
	}

	return Capabilities{
		Formats:         formats,
		RequiredColumns: slices.Clone(requiredColumns),
		OptionalColumns: optional,
		HeaderAliases:   aliases,
		GoogleSheets: SheetsSupport{
			Supported: false,
			Note:      "sheets schedules are stored and listed, but running them is not implemented",
		},
	}
}
