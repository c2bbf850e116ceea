package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// ParsePrice Tests
// ----------------------------------------------------------------------------

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		// Plain numbers
		{name: "integer", input: "1000", want: "1000"},
		{name: "zero", input: "0", want: "0"},
		{name: "dot decimal", input: "12.50", want: "12.5"},
		{name: "comma decimal", input: "12,50", want: "12.5"},
		{name: "leading decimal separator", input: ",99", want: "0.99"},

		// Currency symbols and codes
		{name: "dollar sign", input: "$1200", want: "1200"},
		{name: "dollar sign with space", input: "$ 1200", want: "1200"},
		{name: "euro", input: "€9,90", want: "9.9"},
		{name: "currency code prefix", input: "MXN 85", want: "85"},
		{name: "currency code suffix", input: "85 COP", want: "85"},
		{name: "excel formula prefix", input: `="450"`, want: "450"},

		// Thousands separators
		{name: "dot thousands", input: "$12.000", want: "12000"},
		{name: "comma thousands", input: "12,000", want: "12000"},
		{name: "repeated dot thousands", input: "1.234.567", want: "1234567"},
		{name: "repeated comma thousands", input: "1,234,567", want: "1234567"},
		{name: "european grouping", input: "1.234,50", want: "1234.5"},
		{name: "us grouping", input: "1,234.50", want: "1234.5"},
		{name: "space grouping", input: "1 234,50", want: "1234.5"},
		{name: "zero integer part stays decimal", input: "0.500", want: "0.5"},

		// Invalid
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace", input: "   ", wantErr: true},
		{name: "word", input: "bad", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "accounting negative", input: "(5.00)", wantErr: true},
		{name: "embedded garbage", input: "12#4", wantErr: true},
		{name: "separator only", input: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid price")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParsePriceExactDecimal(t *testing.T) {
	a, err := ParsePrice("12.10")
	require.NoError(t, err)
	b, err := ParsePrice("12,1")
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "12.10 and 12,1 should be the same price")
}

// ----------------------------------------------------------------------------
// ParseAvailable Tests
// ----------------------------------------------------------------------------

func TestParseAvailable(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"si", true},
		{"Sí", true},
		{"yes", true},
		{"TRUE", true},
		{"1", true},
		{"activo", true},
		{"", true},
		{"  ", true},
		{"maybe", true},
		{"no", false},
		{"NO", false},
		{"false", false},
		{"0", false},
		{"inactivo", false},
		{"Inactive", false},
		{"unavailable", false},
		{"agotado", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAvailable(tt.input))
		})
	}
}

// ----------------------------------------------------------------------------
// Key and header normalization
// ----------------------------------------------------------------------------

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "taco al pastor", NormalizeKey("  Taco   AL pastor "))
	assert.Equal(t, NormalizeKey("TACO"), NormalizeKey("taco"))
	assert.NotEqual(t, NormalizeKey("jalapeño"), NormalizeKey("jalapeno"))
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Nombre", "nombre"},
		{"  DESCRIPCIÓN ", "descripcion"},
		{"Categoría:", "categoria"},
		{`"Precio"`, "precio"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.input))
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{" padded ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCell(tt.input))
		})
	}
}
