// Package formats registers the catalog source parsers: delimited text,
// xlsx and xls workbooks, and PDF menus. Import it for side effects.
package formats

import "github.com/JonMunkholm/menusync/internal/core"

func init() {
	core.RegisterParser(core.FormatCSV, core.ParserFunc(parseCSV))
	core.RegisterParser(core.FormatXLSX, core.ParserFunc(parseXLSX))
	core.RegisterParser(core.FormatXLS, core.ParserFunc(parseXLS))
	core.RegisterParser(core.FormatPDF, core.ParserFunc(parsePDF))
}
