package pipeline

import (
	"bufio"
	"context"
	"io"

	"github.com/ajitpratap0/csvload/pkg/compression"
	"github.com/ajitpratap0/csvload/pkg/json"
	"github.com/ajitpratap0/csvload/pkg/models"
)

// JSONSink writes rows as JSON to a writer, optionally compressed
type JSONSink struct {
	buf        *bufio.Writer
	compressor io.WriteCloser
	encoder    *json.RowEncoder
	name       string
}

// NewJSONSink wraps w. Close flushes everything but leaves w open.
func NewJSONSink(w io.Writer, format json.Format, alg compression.Algorithm) (*JSONSink, error) {
	buf := bufio.NewWriterSize(w, 64*1024)
	cw, err := compression.NewWriter(alg, buf, compression.Default)
	if err != nil {
		return nil, err
	}
	name := "json"
	if format == json.Lines {
		name = "jsonl"
	}
	if alg != compression.None {
		name += "." + string(alg)
	}
	return &JSONSink{
		buf:        buf,
		compressor: cw,
		encoder:    json.NewRowEncoder(cw, format),
		name:       name,
	}, nil
}

// Name implements RowSink
func (s *JSONSink) Name() string {
	return s.name
}

// Write implements RowSink
func (s *JSONSink) Write(_ context.Context, batch *models.RowBatch) error {
	return s.encoder.EncodeBatch(batch)
}

// Close finishes the encoding, the compressed stream and the buffer
func (s *JSONSink) Close() error {
	if err := s.encoder.Close(); err != nil {
		return err
	}
	if err := s.compressor.Close(); err != nil {
		return err
	}
	return s.buf.Flush()
}
