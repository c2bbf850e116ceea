package formats

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns data as UTF-8. A leading BOM is dropped; input that is
// not valid UTF-8 is read as Windows-1252, the usual export encoding of
// spreadsheet tools on Spanish-locale machines.
func decodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return bytes.ToValidUTF8(data, []byte("�"))
	}
	return decoded
}

// detectDelimiter picks ';' when the first line has more semicolons than
// commas, as produced by locales that use ',' for decimals.
func detectDelimiter(text []byte) rune {
	first, _, _ := bytes.Cut(text, []byte("\n"))
	line := string(first)
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t'
	}
	return ','
}
