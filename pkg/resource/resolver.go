package resource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/logger"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/observability"
)

// Resolver opens locations through its registered fetchers
type Resolver struct {
	policy   Policy
	fetchers map[string]Fetcher
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewResolver creates a resolver with the file, http, https, s3 and gs
// fetchers registered. A nil cfg uses config.NewConfig defaults and a nil
// log uses the global logger.
func NewResolver(policy Policy, cfg *config.Config, log *zap.Logger) *Resolver {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if log == nil {
		log = logger.Get()
	}

	r := &Resolver{
		policy:   policy,
		fetchers: make(map[string]Fetcher),
		logger:   log.With(zap.String("component", "resource_resolver")),
	}

	web := newHTTPFetcher(cfg.Network, r.logger)
	r.fetchers["file"] = &fileFetcher{policy: policy}
	r.fetchers["http"] = web
	r.fetchers["https"] = web
	r.fetchers["s3"] = newS3Fetcher(cfg.S3)
	r.fetchers["gs"] = newGCSFetcher(cfg.GCS)
	return r
}

// Policy returns the resolver's policy
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Register adds a fetcher for a scheme
func (r *Resolver) Register(scheme string, f Fetcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fetchers[scheme]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "fetcher for scheme %s already registered", scheme)
	}
	r.fetchers[scheme] = f
	r.logger.Debug("fetcher registered", zap.String("scheme", scheme))
	return nil
}

// Schemes returns the registered schemes in sorted order
func (r *Resolver) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open resolves location to a stream positioned at the start of content.
// headers are sent with HTTP requests.
func (r *Resolver) Open(ctx context.Context, location string, headers map[string]string) (res *Resource, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanResolve)
	span.SetAttribute("location", location)
	defer func() { span.End(err) }()

	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	span.SetAttribute("scheme", loc.Scheme)

	defer func() {
		if err != nil {
			metrics.ResolveErrors.WithLabelValues(loc.Scheme, string(errors.TypeOf(err))).Inc()
		}
	}()

	r.mu.RLock()
	fetcher, ok := r.fetchers[loc.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported location scheme: %s", loc.Scheme).
			WithDetail("location", location)
	}

	if err := r.policy.Allow(fetcher.Class()); err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	res, err = fetcher.Fetch(ctx, loc, headers)
	if err != nil {
		r.logger.Debug("open failed",
			zap.String("location", location),
			zap.Error(err))
		return nil, err
	}
	elapsed := timer.Stop()
	metrics.OpenLatency.WithLabelValues(loc.Scheme).Observe(elapsed.Seconds())

	res.Location = location
	res.Scheme = loc.Scheme
	res.Class = fetcher.Class()
	span.SetAttribute("content_type", res.ContentType)
	span.SetAttribute("size", res.Size)

	r.logger.Debug("location opened",
		zap.String("location", location),
		zap.String("scheme", loc.Scheme),
		zap.Int64("size", res.Size),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

// Close releases clients held by the fetchers
func (r *Resolver) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first error
	seen := make(map[Fetcher]bool)
	for _, f := range r.fetchers {
		if seen[f] {
			continue
		}
		seen[f] = true
		if c, ok := f.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
