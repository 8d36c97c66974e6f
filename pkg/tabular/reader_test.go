package tabular

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var studentSchema = Schema{
	Columns:  []string{"full_name", "symbol_number", "registration_number", "college"},
	Required: []string{"full_name", "symbol_number", "registration_number"},
}

func TestReaderDetectsTabDelimiter(t *testing.T) {
	input := "Full_Name\tSymbol_Number\tRegistration_Number\n" +
		"Asha Rai\tS-1\tR-1\n" +
		"Bikash, Jr\tS-2\tR-2\n"

	r, err := NewReader(strings.NewReader(input), studentSchema, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"full_name", "symbol_number", "registration_number"}, r.Header())

	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "Bikash, Jr", rows[1].Fields["full_name"])
	assert.Equal(t, "", rows[1].Fields["college"])
}

func TestReaderCommaWithBOMAndExtraColumns(t *testing.T) {
	input := "\ufeffsymbol_number,notes,full_name,registration_number,college\n" +
		"S-1,ignored,Asha Rai,R-1,KMC\n"

	r, err := NewReader(strings.NewReader(input), studentSchema, Options{})
	require.NoError(t, err)

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"full_name":           "Asha Rai",
		"symbol_number":       "S-1",
		"registration_number": "R-1",
		"college":             "KMC",
	}, row.Fields)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderMissingRequiredColumnIsFatal(t *testing.T) {
	input := "full_name\tsymbol_number\nAsha\tS-1\n"

	_, err := NewReader(strings.NewReader(input), studentSchema, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInput))

	var malformed *MalformedInputError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, []string{"registration_number"}, malformed.Missing)
}

func TestReaderEmptyUpload(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), studentSchema, Options{})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestReaderShortRowsAndBlankLines(t *testing.T) {
	input := "full_name\tsymbol_number\tregistration_number\n" +
		"Asha Rai\tS-1\n" +
		"\n" +
		"\t\t\n" +
		"Chandra\t\tR-3\n"

	r, err := NewReader(strings.NewReader(input), studentSchema, Options{})
	require.NoError(t, err)

	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].Fields["registration_number"])
	assert.Equal(t, 2, rows[1].Index)
	assert.Equal(t, "", rows[1].Fields["symbol_number"])
}

func TestReaderExplicitComma(t *testing.T) {
	input := "full_name;symbol_number;registration_number\nA;S;R\n"

	r, err := NewReader(strings.NewReader(input), studentSchema, Options{Comma: ';'})
	require.NoError(t, err)
	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "S", row.Fields["symbol_number"])
}

func TestReaderBindsAliases(t *testing.T) {
	schema := studentSchema
	schema.Aliases = map[string][]string{"full_name": {"fullname"}}

	r, err := NewReader(strings.NewReader("fullname\tsymbol_number\tregistration_number\nAsha Rai\tS-1\tR-1\n"), schema, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"full_name", "symbol_number", "registration_number"}, r.Header())

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Asha Rai", row.Fields["full_name"])
}
