package loader

import (
	"context"
	"io"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/archive"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/models"
	"github.com/ajitpratap0/csvload/pkg/observability"
	"github.com/ajitpratap0/csvload/pkg/resource"
	"github.com/ajitpratap0/csvload/pkg/schema"
	"github.com/ajitpratap0/csvload/pkg/tokenizer"
)

// Stats counts the work done by one iterator
type Stats struct {
	RowsRead     int64 `json:"rowsRead"`
	Skipped      int64 `json:"skipped"`
	Emitted      int64 `json:"emitted"`
	CastFailures int64 `json:"castFailures"`
	BytesRead    int64 `json:"bytesRead"`
}

// Iterator yields the rows of one load in source order. It is not safe for
// concurrent use and cannot be restarted.
type Iterator struct {
	ctx       context.Context
	requestID string
	plan      *plan
	span      *observability.Span
	log       *zap.Logger
	timer     *metrics.Timer

	ownedResolver *resource.Resolver
	res           *resource.Resource
	stream        io.ReadCloser
	format        archive.Format
	tok           *tokenizer.Reader
	schema        *schema.Schema
	projector     *models.Projector
	header        []string

	row    *models.Row
	err    error
	done   bool
	active bool
	stats  Stats

	releaseOnce sync.Once
	closeErr    error
}

// Next advances to the next row. It returns false when the stream is
// exhausted, the limit is reached, an error occurs or the iterator is
// closed; resources are released at that point.
func (it *Iterator) Next() bool {
	if it.done {
		it.row = nil
		return false
	}
	cfg := it.plan.cfg
	limit, capped := cfg.MaxRows()
	if capped && it.stats.Emitted >= limit {
		it.finish(nil)
		it.row = nil
		return false
	}

	for {
		if err := it.ctx.Err(); err != nil {
			it.finish(errors.Wrap(err, errors.ErrorTypeResource, "load canceled"))
			it.row = nil
			return false
		}

		raw, err := it.tok.Next()
		if err == io.EOF {
			it.finish(nil)
			it.row = nil
			return false
		}
		if err != nil {
			it.finish(err)
			it.row = nil
			return false
		}
		it.stats.RowsRead++
		metrics.Rows.WithLabelValues(metrics.StageRead).Inc()

		if raw.LineNo < cfg.Skip {
			it.stats.Skipped++
			metrics.Rows.WithLabelValues(metrics.StageSkipped).Inc()
			continue
		}

		typed, err := it.schema.Apply(raw)
		if err != nil {
			it.finish(err)
			it.row = nil
			return false
		}

		it.row = it.projector.Project(typed)
		it.stats.Emitted++
		metrics.Rows.WithLabelValues(metrics.StageEmitted).Inc()

		// release the source as soon as the last wanted row is built
		if capped && it.stats.Emitted >= limit {
			it.finish(nil)
		}
		return true
	}
}

// Row returns the current row. Each row is freshly allocated and stays
// valid after Next is called again.
func (it *Iterator) Row() *models.Row {
	return it.row
}

// Err returns the error that stopped the iteration, if any
func (it *Iterator) Err() error {
	return it.err
}

// Header returns the column names read from the stream, nil without a header
func (it *Iterator) Header() []string {
	return it.header
}

// Format returns the detected container format
func (it *Iterator) Format() archive.Format {
	return it.format
}

// RequestID returns the id attached to this load's logs and spans
func (it *Iterator) RequestID() string {
	return it.requestID
}

// Stats returns the counters accumulated so far
func (it *Iterator) Stats() Stats {
	s := it.stats
	if it.schema != nil {
		s.CastFailures = it.schema.CastFailures()
	}
	if it.res != nil {
		s.BytesRead = it.res.BytesRead()
	}
	return s
}

// Close stops the iteration and releases every resource. It is safe to
// call more than once and after the iterator finished on its own.
func (it *Iterator) Close() error {
	it.finish(nil)
	it.row = nil
	return it.closeErr
}

// All returns a single-use sequence of rows. A stream error is yielded once
// with a nil row. The iterator is closed when the loop ends, including on break.
func (it *Iterator) All() iter.Seq2[*models.Row, error] {
	return func(yield func(*models.Row, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Row(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// finish records err, if it is the first one, and releases resources once
func (it *Iterator) finish(err error) {
	if err != nil && it.err == nil && !it.done {
		it.err = err
	}
	it.done = true
	it.releaseOnce.Do(it.release)
}

func (it *Iterator) release() {
	var first error
	switch {
	case it.stream != nil:
		// the archive reader owns the resource
		first = it.stream.Close()
	case it.res != nil:
		first = it.res.Close()
	}
	if it.ownedResolver != nil {
		if err := it.ownedResolver.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		it.closeErr = errors.Wrap(first, errors.ErrorTypeResource, "failed to release load resources")
	}
	if it.active {
		metrics.ActiveLoads.Dec()
		it.active = false
	}

	stats := it.Stats()
	it.span.SetAttribute("rows_emitted", stats.Emitted)
	it.span.SetAttribute("rows_skipped", stats.Skipped)
	it.span.SetAttribute("bytes_read", stats.BytesRead)
	it.span.End(it.err)

	fields := []zap.Field{
		zap.Int64("rows_read", stats.RowsRead),
		zap.Int64("rows_emitted", stats.Emitted),
		zap.Int64("rows_skipped", stats.Skipped),
		zap.Int64("cast_failures", stats.CastFailures),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Duration("elapsed", it.timer.Stop()),
	}
	if it.err != nil {
		it.log.Error("load failed", append(fields, zap.Error(it.err))...)
		return
	}
	it.log.Info("load closed", fields...)
}
