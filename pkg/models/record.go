// Package models provides the row types that flow through a load: the raw
// fields produced by the tokenizer, the typed cells produced by the column
// schema, and the projected Row handed to the caller.
//
// A row moves through three stages:
//
//	RawRow   -> ordered raw strings plus the stream header
//	TypedRow -> one Cell per retained column, cast and null-substituted
//	Row      -> the requested shapes (Map, List, StringMap, Strings)
//
// Every stage allocates fresh slices per row; nothing is reused after a row
// has been handed on.
package models

// RawRow is one tokenized data row.
type RawRow struct {
	// LineNo is the 0-based index of the row among data rows; the header is not counted
	LineNo int64
	// Fields are the raw field values in source order
	Fields []string
	// Header is the stream header, nil when header mode is off. It is shared
	// between rows and must not be modified.
	Header []string
}

// Field returns the raw value at position i and whether the row has one.
func (r RawRow) Field(i int) (string, bool) {
	if i < 0 || i >= len(r.Fields) {
		return "", false
	}
	return r.Fields[i], true
}

// Cell is the value of one retained column in a TypedRow.
type Cell struct {
	// Name is the output key; empty when the stream has no header. A header
	// column may itself be named "".
	Name string
	// Extra marks a field beyond the header, which keyed shapes leave out
	Extra bool
	// Value is string, int64, float64, bool, []any or nil
	Value any
	// Raw is the source text before casting and null substitution
	Raw string
	// Present is false when the row is shorter than the header
	Present bool
}

// TypedRow is a RawRow after column rules have been applied. Ignored
// columns are absent from Cells.
type TypedRow struct {
	LineNo int64
	Cells  []Cell
}

// RowBatch collects projected rows for sinks that write in bulk.
type RowBatch struct {
	// Rows holds the buffered rows in source order
	Rows []*Row
}

// NewRowBatch creates a batch with room for capacity rows.
func NewRowBatch(capacity int) *RowBatch {
	return &RowBatch{Rows: make([]*Row, 0, capacity)}
}

// Add appends a row to the batch.
func (b *RowBatch) Add(r *Row) {
	b.Rows = append(b.Rows, r)
}

// Reset clears the batch for reuse. The rows themselves are not reused.
func (b *RowBatch) Reset() {
	clear(b.Rows)
	b.Rows = b.Rows[:0]
}

// Size returns the number of buffered rows.
func (b *RowBatch) Size() int {
	return len(b.Rows)
}
