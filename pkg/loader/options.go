package loader

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/resource"
)

// Option configures Open
type Option func(*options)

type options struct {
	resolver *resource.Resolver
	config   *config.Config
	log      *zap.Logger
}

// WithResolver shares an existing resolver. The iterator does not close it.
func WithResolver(r *resource.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithConfig builds a resolver from cfg for this load only. It is ignored
// when WithResolver is also given.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger sets the base logger; the request id and location are added to it
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}
