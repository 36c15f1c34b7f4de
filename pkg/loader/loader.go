// Package loader streams the rows of a delimited file, composing location
// resolution, archive unwrapping, character decoding, tokenizing, column
// casting and row projection behind one pull-based iterator.
//
// # Basic Usage
//
//	cfg := config.NewLoadConfig()
//	cfg.Mapping = map[string]config.ColumnRule{"age": {Type: "int"}}
//
//	it, err := loader.Open(ctx, loader.NewRequest("https://host/people.csv", cfg))
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	return it.Err()
//
// Or with a range-over-func loop, where break releases every resource:
//
//	for row, err := range it.All() {
//	    ...
//	}
package loader

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/archive"
	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/logger"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/models"
	"github.com/ajitpratap0/csvload/pkg/observability"
	"github.com/ajitpratap0/csvload/pkg/resource"
	"github.com/ajitpratap0/csvload/pkg/schema"
	"github.com/ajitpratap0/csvload/pkg/tokenizer"
)

// Request names what to load and how. Open copies it; changing the Request
// afterwards does not affect a running load.
type Request struct {
	// Location is a path or URL, optionally followed by "!entry" to select
	// a file inside an archive
	Location string
	// Config holds the load options; nil means NewLoadConfig defaults
	Config *config.LoadConfig
}

// NewRequest creates a Request
func NewRequest(location string, cfg *config.LoadConfig) Request {
	return Request{Location: location, Config: cfg}
}

// plan is the validated, immutable form of a Request
type plan struct {
	location string
	base     string
	selector string
	cfg      *config.LoadConfig
	tokens   tokenizer.Options
	shapes   models.ShapeSet
}

func compile(req Request) (*plan, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = config.NewLoadConfig()
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := tokenizer.OptionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	shapes, err := models.ParseShapes(cfg.Results)
	if err != nil {
		return nil, err
	}
	if _, _, err := resource.LookupEncoding(cfg.Encoding); err != nil {
		return nil, err
	}

	base, selector := archive.SplitLocation(req.Location)
	return &plan{
		location: req.Location,
		base:     base,
		selector: selector,
		cfg:      cfg,
		tokens:   tokens,
		shapes:   shapes,
	}, nil
}

// Open validates req, opens its location and reads the header. Every
// resource acquired is released if Open fails.
func Open(ctx context.Context, req Request, opts ...Option) (_ *Iterator, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get()
	}

	p, err := compile(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, logger.LocationKey, p.location)
	log := logger.FromContext(ctx, o.log).With(zap.String("component", "loader"))

	ctx, span := observability.StartSpan(ctx, observability.SpanLoad)
	span.SetAttribute("request_id", requestID)
	span.SetAttribute("location", p.location)

	it := &Iterator{
		ctx:       ctx,
		requestID: requestID,
		plan:      p,
		span:      span,
		log:       log,
		timer:     metrics.NewTimer(),
	}
	defer func() {
		if err != nil {
			it.finish(err)
		}
	}()

	resolver := o.resolver
	if resolver == nil {
		cfg := o.config
		if cfg == nil {
			cfg = config.NewConfig()
		}
		resolver = resource.NewResolver(resource.PolicyFromConfig(cfg), cfg, o.log)
		it.ownedResolver = resolver
	}

	res, err := resolver.Open(ctx, p.base, p.cfg.Headers)
	if err != nil {
		return nil, err
	}
	it.res = res

	stream, format, err := archive.Open(ctx, res, archive.Hint{
		Name:        res.Name,
		Compression: p.cfg.Compression,
		Selector:    p.selector,
	}, log)
	if err != nil {
		return nil, err
	}
	it.stream = stream
	it.format = format

	label := p.cfg.Encoding
	if label == "" {
		label = res.Charset
	}
	decoded, err := resource.DecodeReader(stream, label)
	if err != nil {
		return nil, err
	}

	it.tok = tokenizer.New(decoded, p.tokens)
	header, err := it.tok.Header()
	if err != nil {
		return nil, err
	}
	it.header = header

	it.schema, err = schema.Compile(header, p.cfg, schema.WithLogger(log))
	if err != nil {
		return nil, err
	}
	it.projector = models.NewProjector(p.shapes, it.schema.Columns())

	metrics.ActiveLoads.Inc()
	it.active = true

	log.Info("load opened",
		zap.String("format", format.String()),
		zap.Int("columns", len(header)),
		zap.String("shapes", it.projector.Shapes().String()))
	return it, nil
}

// Load opens req and calls fn for every row. It stops at the first error
// returned by fn or by the stream.
func Load(ctx context.Context, req Request, fn func(*models.Row) error, opts ...Option) (Stats, error) {
	it, err := Open(ctx, req, opts...)
	if err != nil {
		return Stats{}, err
	}
	defer it.Close()

	for it.Next() {
		if err := fn(it.Row()); err != nil {
			_ = it.Close()
			return it.Stats(), err
		}
	}
	if err := it.Err(); err != nil {
		return it.Stats(), err
	}
	return it.Stats(), it.Close()
}

// Validate checks req without opening its location. Unlike Open it also
// checks the mapping types, which Open can only check against the header.
func Validate(req Request) error {
	p, err := compile(req)
	if err != nil {
		if errors.TypeOf(err) == "" {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid load request")
		}
		return err
	}
	for key, rule := range p.cfg.Mapping {
		if _, err := schema.ParseType(rule.Type); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid mapping for column "+key).
				WithDetail("column", key)
		}
	}
	return nil
}
