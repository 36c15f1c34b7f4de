// Package json encodes rows with github.com/goccy/go-json, either as JSON
// lines or as a single JSON array, reusing buffers between rows.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/csvload/pkg/models"
	"github.com/ajitpratap0/csvload/pkg/pool"
)

// GetBuffer gets an empty pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	return pool.Buffers.Get()
}

// PutBuffer returns a buffer to the pool; buffers over 1MB are dropped
func PutBuffer(buf *bytes.Buffer) {
	pool.Buffers.Put(buf)
}

// Marshal encodes v with goccy/go-json
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v with goccy/go-json
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is Marshal with indentation
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Format selects how RowEncoder frames rows
type Format int

const (
	// Lines writes one JSON object per line
	Lines Format = iota
	// Array writes a single JSON array
	Array
)

// RowEncoder writes rows to w. Each row is encoded into a pooled buffer and
// written with one Write call, so a failed row never leaves partial output.
type RowEncoder struct {
	w      io.Writer
	format Format
	count  int64
	closed bool
}

// NewRowEncoder creates an encoder. For Array the opening bracket is
// written with the first row or on Close.
func NewRowEncoder(w io.Writer, format Format) *RowEncoder {
	return &RowEncoder{w: w, format: format}
}

// Encode writes one row
func (e *RowEncoder) Encode(row *models.Row) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if e.format == Array {
		if e.count == 0 {
			buf.WriteByte('[')
		} else {
			buf.WriteByte(',')
		}
	}

	if err := row.AppendJSON(buf); err != nil {
		return err
	}
	if e.format == Lines {
		buf.WriteByte('\n')
	}

	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return err
	}
	e.count++
	return nil
}

// EncodeBatch writes every row of b
func (e *RowEncoder) EncodeBatch(b *models.RowBatch) error {
	for _, row := range b.Rows {
		if err := e.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows written
func (e *RowEncoder) Count() int64 {
	return e.count
}

// Close finishes an array. It does not close the underlying writer.
func (e *RowEncoder) Close() error {
	if e.closed || e.format != Array {
		e.closed = true
		return nil
	}
	e.closed = true
	tail := "]\n"
	if e.count == 0 {
		tail = "[]\n"
	}
	_, err := io.WriteString(e.w, tail)
	return err
}
