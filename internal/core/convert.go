package core

// convert.go coerces raw catalog cells into typed values.
//
// Source files come from point-of-sale exports and hand-edited spreadsheets:
//   - prices carry currency symbols and either `.` or `,` as decimal separator
//   - thousands separators are common in whole-peso prices ("$12.000")
//   - availability uses Spanish or English tokens ("si", "activo", "no")
//   - Excel formula prefixes (="value") and stray quotes survive CSV export

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	errInvalidPrice  = errors.New("invalid price")
	errNegativePrice = errors.New("invalid price: must not be negative")
)

// priceDigitsRegex is the shape a price must have once separators are resolved.
var priceDigitsRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// FoldAccents strips combining marks: "Descripción" becomes "Descripcion".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizeKey is the product identity within a tenant: trimmed, lowercased,
// inner whitespace collapsed. Accents are significant.
func NormalizeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// NormalizeHeader prepares a header cell for alias lookup: case and accents
// are ignored, as are a trailing colon and surrounding whitespace.
func NormalizeHeader(h string) string {
	h = strings.ToLower(FoldAccents(CleanCell(h)))
	h = strings.TrimSuffix(h, ":")
	return strings.Join(strings.Fields(h), " ")
}

// ParsePrice parses a non-negative price.
//
// Currency symbols, codes and spaces are ignored. Both `.` and `,` are accepted
// as the decimal separator. A separator is read as a thousands separator when it
// repeats ("1.234.567") or when it appears once followed by exactly three
// digits after a non-zero integer part ("12.000"). When both separators appear
// the last one is the decimal separator ("1.234,50").
func ParsePrice(s string) (decimal.Decimal, error) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, errInvalidPrice
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}
	s = strings.TrimFunc(s, unicode.IsLetter)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = true
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r), r == '(', r == ')':
		default:
			return decimal.Zero, errInvalidPrice
		}
	}

	digits := resolveSeparators(b.String())
	if !priceDigitsRegex.MatchString(digits) {
		return decimal.Zero, errInvalidPrice
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, errInvalidPrice
	}
	if negative && !d.IsZero() {
		return decimal.Zero, errNegativePrice
	}
	return d, nil
}

// resolveSeparators rewrites s so that only a `.` decimal separator remains.
func resolveSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	if lastDot >= 0 && lastComma >= 0 {
		dec := max(lastDot, lastComma)
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:dec])
		return intPart + "." + s[dec+1:]
	}

	sep := "."
	idx := lastDot
	if lastComma >= 0 {
		sep = ","
		idx = lastComma
	}
	if idx < 0 {
		return s
	}

	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}

	intPart, frac := s[:idx], s[idx+1:]
	if len(frac) == 3 && intPart != "" && strings.TrimLeft(intPart, "0") != "" {
		return intPart + frac
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart + "." + frac
}

// ParseAvailable reads an availability cell. Accepts si/yes/true/1/t/y/activo
// as available and no/false/0/f/n/inactivo/inactive/unavailable/agotado as not.
// Absent, empty and unknown values default to available.
func ParseAvailable(s string) bool {
	switch strings.ToLower(FoldAccents(CleanCell(s))) {
	case "no", "false", "0", "f", "n", "inactivo", "inactive", "unavailable", "agotado":
		return false
	default:
		return true
	}
}
