package formats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/menusync/internal/core"
)

func parse(t *testing.T, format core.Format, data []byte, opts core.ParseOptions) ([]core.RawRow, []core.ParseError, error) {
	t.Helper()
	p, err := core.ParserFor(format)
	require.NoError(t, err)
	return p.Parse(context.Background(), data, opts)
}

func cell(t *testing.T, row core.RawRow, c core.Column) string {
	t.Helper()
	v, ok := row.Get(c)
	require.True(t, ok, "row %d has no %s", row.Index, c)
	return v
}

func TestAllFormatsRegistered(t *testing.T) {
	require.NoError(t, core.ValidateRegistry())
	assert.ElementsMatch(t, core.SupportedFormats, core.RegisteredFormats())
}

func TestParseCSVHeader(t *testing.T) {
	data := []byte("\xEF\xBB\xBFNombre,Precio,Categoría,Descripción,Disponible\n" +
		"Taco,\"1.200\",Tacos,Pastor,si\n" +
		"\n" +
		"Agua,15,,,no\n")

	rows, rowErrs, err := parse(t, core.FormatCSV, data, core.ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "Taco", cell(t, rows[0], core.ColumnName))
	assert.Equal(t, "1.200", cell(t, rows[0], core.ColumnPrice))
	assert.Equal(t, "Tacos", cell(t, rows[0], core.ColumnCategory))
	assert.Equal(t, "Pastor", cell(t, rows[0], core.ColumnDescription))

	assert.Equal(t, 4, rows[1].Index, "blank lines keep their position")
	assert.Equal(t, "no", cell(t, rows[1], core.ColumnAvailable))
}

func TestParseCSVPositional(t *testing.T) {
	rows, _, err := parse(t, core.FormatCSV, []byte("Taco,1000\nBurrito,2500,Burritos"), core.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "1000", cell(t, rows[0], core.ColumnPrice))
	_, ok := rows[0].Get(core.ColumnCategory)
	assert.False(t, ok)
	assert.Equal(t, "Burritos", cell(t, rows[1], core.ColumnCategory))
}

func TestParseCSVSemicolon(t *testing.T) {
	rows, _, err := parse(t, core.FormatCSV, []byte("nombre;precio\nCafé;2,50\n"), core.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café", cell(t, rows[0], core.ColumnName))
	assert.Equal(t, "2,50", cell(t, rows[0], core.ColumnPrice))
}

func TestParseCSVWindows1252(t *testing.T) {
	rows, _, err := parse(t, core.FormatCSV, []byte("nombre,precio\nCaf\xe9 con leche,3\n"), core.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café con leche", cell(t, rows[0], core.ColumnName))
}

func TestParseCSVMissingRequiredColumn(t *testing.T) {
	rows, _, err := parse(t, core.FormatCSV, []byte("nombre,categoria\nTaco,Tacos\n"), core.ParseOptions{})
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, core.IsKind(err, core.KindInput))
	assert.ErrorIs(t, err, core.ErrMissingColumn)

	var fatal *core.FatalParseError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, 1, fatal.RowIndex)
	assert.Contains(t, fatal.Reason, "price")
}

func TestParseCSVOnlyBlankLines(t *testing.T) {
	_, _, err := parse(t, core.FormatCSV, []byte("\n\n ,\n"), core.ParseOptions{})
	assert.ErrorIs(t, err, core.ErrEmptyFile)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{"a,b,c\n1;2", ','},
		{"a;b;c\n1,2", ';'},
		{"a\tb\n", '\t'},
		{"single", ','},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDelimiter([]byte(tt.in)), tt.in)
	}
}
