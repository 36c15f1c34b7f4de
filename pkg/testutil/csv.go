package testutil

import (
	"strings"
)

// CSVBuilder writes delimited text, quoting only the fields that need it.
// It is the inverse of the tokenizer and is used to build fixtures.
type CSVBuilder struct {
	b     strings.Builder
	sep   rune
	quote rune
	rows  int
}

// NewCSVBuilder creates a builder for the given separator and quote
func NewCSVBuilder(sep, quote rune) *CSVBuilder {
	return &CSVBuilder{sep: sep, quote: quote}
}

// WriteRow writes one record terminated by "\n"
func (cb *CSVBuilder) WriteRow(fields ...string) *CSVBuilder {
	for i, f := range fields {
		if i > 0 {
			cb.b.WriteRune(cb.sep)
		}
		cb.writeField(f, len(fields) == 1)
	}
	cb.b.WriteByte('\n')
	cb.rows++
	return cb
}

func (cb *CSVBuilder) writeField(field string, only bool) {
	// a lone empty field would otherwise be an empty line
	needsQuoting := (only && field == "") ||
		strings.ContainsRune(field, cb.sep) ||
		strings.ContainsRune(field, cb.quote) ||
		strings.ContainsAny(field, "\r\n")
	if !needsQuoting {
		cb.b.WriteString(field)
		return
	}

	q := string(cb.quote)
	cb.b.WriteString(q)
	cb.b.WriteString(strings.ReplaceAll(field, q, q+q))
	cb.b.WriteString(q)
}

// Rows returns the number of records written
func (cb *CSVBuilder) Rows() int {
	return cb.rows
}

// String returns the text written so far
func (cb *CSVBuilder) String() string {
	return cb.b.String()
}

// Bytes returns the text written so far
func (cb *CSVBuilder) Bytes() []byte {
	return []byte(cb.b.String())
}
