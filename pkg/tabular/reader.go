// Package tabular reads delimited uploads (TSV or CSV) into header-keyed rows.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedInput marks uploads whose structure cannot be read at all.
var ErrMalformedInput = errors.New("malformed input")

const sniffSize = 64 * 1024

var bom = []byte{0xEF, 0xBB, 0xBF}

// MalformedInputError describes a structural failure of an upload.
type MalformedInputError struct {
	Line    int
	Missing []string
	Reason  string
}

func (e *MalformedInputError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("malformed input: missing required column(s) %s", strings.Join(e.Missing, ", "))
	}
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %s", e.Line, e.Reason)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// Schema names the columns a caller understands. Columns not listed are ignored. Aliases maps a
// column to alternative header spellings that bind to it.
type Schema struct {
	Columns  []string
	Required []string
	Aliases  map[string][]string
}

// Options tunes the reader. A zero Comma auto-detects tab versus comma from the header line.
type Options struct {
	Comma rune
}

// Row is one data row keyed by schema column. Index is 1-based and excludes the header.
type Row struct {
	Index  int
	Fields map[string]string
}

// Reader yields rows lazily in a single pass.
type Reader struct {
	csv     *csv.Reader
	schema  Schema
	header  []string
	columns map[string]int
	index   int
}

// NewReader consumes the header line and verifies every required column is present.
func NewReader(r io.Reader, schema Schema, opts Options) (*Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	if head, _ := br.Peek(len(bom)); bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	comma := opts.Comma
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Reason: "empty upload, header row expected"}
	}
	if err != nil {
		return nil, parseFailure(err)
	}

	reader := &Reader{csv: cr, schema: schema}
	if err := reader.bindHeader(header); err != nil {
		return nil, err
	}
	return reader, nil
}

// Header returns the schema columns found in the upload, in upload order.
func (r *Reader) Header() []string {
	out := make([]string, len(r.header))
	copy(out, r.header)
	return out
}

// Next returns the next non-blank row, or io.EOF once the input is exhausted.
func (r *Reader) Next() (Row, error) {
	for {
		record, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, parseFailure(err)
		}
		if blank(record) {
			continue
		}

		r.index++
		fields := make(map[string]string, len(r.columns))
		for name, pos := range r.columns {
			if pos < len(record) {
				fields[name] = record[pos]
			} else {
				fields[name] = ""
			}
		}
		return Row{Index: r.index, Fields: fields}, nil
	}
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (r *Reader) bindHeader(header []string) error {
	known := make(map[string]string, len(r.schema.Columns))
	for _, col := range r.schema.Columns {
		known[normalize(col)] = col
		for _, alias := range r.schema.Aliases[col] {
			known[normalize(alias)] = col
		}
	}

	r.columns = make(map[string]int, len(r.schema.Columns))
	for pos, raw := range header {
		col, ok := known[normalize(raw)]
		if !ok {
			continue
		}
		if _, dup := r.columns[col]; dup {
			continue
		}
		r.columns[col] = pos
		r.header = append(r.header, col)
	}

	var missing []string
	for _, req := range r.schema.Required {
		if _, ok := r.columns[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return &MalformedInputError{Line: 1, Missing: missing}
	}
	return nil
}

func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(sniffSize)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	tabs := bytes.Count(peek, []byte{'\t'})
	commas := bytes.Count(peek, []byte{','})
	if tabs > 0 && tabs >= commas {
		return '\t'
	}
	return ','
}

func normalize(s string) string {
	s = strings.TrimPrefix(s, string(bom))
	return strings.ToLower(strings.TrimSpace(s))
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseFailure(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Line: pe.Line, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("read upload: %w", err)
}
