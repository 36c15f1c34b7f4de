// Package pipeline drives rows from a load iterator into a RowSink.
//
// The driver is pull-based and single-threaded: it asks the source for one
// row at a time, applies the transforms in order, and hands rows to the sink
// in batches. No goroutine reads ahead of the sink.
//
// # Basic Usage
//
//	it, err := loader.Open(ctx, req)
//	if err != nil {
//	    return err
//	}
//	sink, err := pipeline.NewJSONSink(os.Stdout, json.Lines, compression.None)
//	if err != nil {
//	    return err
//	}
//	p := pipeline.New(it, sink, nil, logger)
//	result, err := p.Run(ctx)
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/models"
)

// RowSource yields rows one at a time. *loader.Iterator implements it.
type RowSource interface {
	Next() bool
	Row() *models.Row
	Err() error
	Close() error
}

// RowSink accepts produced rows in batches
type RowSink interface {
	// Write consumes a batch; the batch is reset after Write returns
	Write(ctx context.Context, batch *models.RowBatch) error
	// Close flushes buffered output
	Close() error
	// Name labels the sink in metrics
	Name() string
}

// Transform modifies a row in flight. Returning a nil row drops it.
type Transform func(ctx context.Context, row *models.Row) (*models.Row, error)

// Config controls batching
type Config struct {
	BatchSize     int           // Rows per sink write
	FlushInterval time.Duration // Flush a partial batch once it is this old
}

// DefaultConfig returns the batching used by the CLI
func DefaultConfig() *Config {
	return &Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Result summarizes one run
type Result struct {
	Rows     int64
	Dropped  int64
	Batches  int64
	Duration time.Duration
}

// Pipeline moves rows from a RowSource to a RowSink
type Pipeline struct {
	source     RowSource
	sink       RowSink
	transforms []Transform

	batchSize     int
	flushInterval time.Duration

	tracker *metrics.ThroughputTracker
	logger  *zap.Logger
}

// New creates a pipeline. A nil config uses DefaultConfig.
func New(source RowSource, sink RowSink, config *Config, logger *zap.Logger) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:        source,
		sink:          sink,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		tracker:       metrics.NewThroughputTracker(sink.Name()),
		logger:        logger.With(zap.String("component", "pipeline")),
	}
}

// AddTransform appends a transform; transforms run in the order added
func (p *Pipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// Run drains the source into the sink. The source and the sink are closed
// on every exit path; the first error wins.
func (p *Pipeline) Run(ctx context.Context) (result Result, err error) {
	start := time.Now()
	p.logger.Info("starting pipeline",
		zap.String("sink", p.sink.Name()),
		zap.Int("batch_size", p.batchSize),
		zap.Int("transforms", len(p.transforms)))

	defer func() {
		if cerr := p.source.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := p.sink.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeResource, "failed to close sink")
		}
		result.Duration = time.Since(start)
		p.tracker.GetAndReset()
		p.logger.Info("pipeline finished",
			zap.Int64("rows", result.Rows),
			zap.Int64("dropped", result.Dropped),
			zap.Int64("batches", result.Batches),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
	}()

	batch := models.NewRowBatch(p.batchSize)
	lastFlush := time.Now()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		n := int64(batch.Size())
		if err := p.sink.Write(ctx, batch); err != nil {
			return errors.Wrap(err, errors.ErrorTypeResource, "sink write failed")
		}
		result.Rows += n
		result.Batches++
		p.tracker.Increment(n)
		batch.Reset()
		lastFlush = time.Now()
		return nil
	}

	for p.source.Next() {
		row, err := p.apply(ctx, p.source.Row())
		if err != nil {
			return result, err
		}
		if row == nil {
			result.Dropped++
			continue
		}
		batch.Add(row)

		full := batch.Size() >= p.batchSize
		stale := p.flushInterval > 0 && time.Since(lastFlush) >= p.flushInterval
		if full || stale {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := p.source.Err(); err != nil {
		// rows read before the failure are still delivered
		if ferr := flush(); ferr != nil {
			p.logger.Warn("flush after source error failed", zap.Error(ferr))
		}
		return result, err
	}
	return result, flush()
}

func (p *Pipeline) apply(ctx context.Context, row *models.Row) (*models.Row, error) {
	for _, t := range p.transforms {
		var err error
		row, err = t(ctx, row)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
	}
	return row, nil
}
