// Package config provides the configuration system for csvload.
//
// Two kinds of configuration exist:
//   - LoadConfig: the per-invocation options of one load (separator, header,
//     mapping rules, result shapes, ...). Its JSON/YAML keys are the public
//     parameter names accepted by the engine (sep, quoteChar, nullValues, ...).
//   - Config: the process-level settings (file import policy, network timeouts,
//     cloud storage, logging, tracing), usually read from a YAML file.
//
// Example usage:
//
//	cfg := config.NewConfig()
//	cfg.Import.FileEnabled = true
//	cfg.Import.Dir = "/var/lib/import"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/logger"
)

// Defaults for LoadConfig
const (
	DefaultSeparator      = ","
	DefaultQuoteChar      = `"`
	DefaultArraySeparator = ";"
)

// LoadConfig holds the options of a single load invocation. Obtain one with
// NewLoadConfig: the zero value does not carry the documented defaults for
// Header and FailOnError.
type LoadConfig struct {
	// Header marks the first row as the column names
	Header bool `yaml:"header" json:"header"`
	// Separator is a single character or an alias such as TAB
	Separator string `yaml:"sep" json:"sep"`
	// QuoteChar is a single character; "\u0000" or "NONE" disables quoting
	QuoteChar string `yaml:"quoteChar" json:"quoteChar"`
	// ArraySeparator splits array columns without their own arraySep
	ArraySeparator string `yaml:"arraySep" json:"arraySep"`
	// NullValues are raw values read as null; nil means the default [""]
	NullValues []string `yaml:"nullValues" json:"nullValues"`
	// FailOnError aborts the load on the first cast failure when true
	FailOnError bool `yaml:"failOnError" json:"failOnError"`
	// Skip discards that many data rows before the first yielded row
	Skip int64 `yaml:"skip" json:"skip"`
	// Limit stops after that many yielded rows; nil means unbounded and 0
	// yields nothing
	Limit *int64 `yaml:"limit,omitempty" json:"limit,omitempty"`
	// Ignore lists columns dropped from every output shape
	Ignore []string `yaml:"ignore" json:"ignore"`
	// Mapping holds per-column rules keyed by column name or position
	Mapping map[string]ColumnRule `yaml:"mapping" json:"mapping"`
	// Results selects the output shapes; empty means all of them
	Results []string `yaml:"results" json:"results"`
	// Encoding overrides the declared character encoding
	Encoding string `yaml:"encoding" json:"encoding"`
	// Compression forces a stream codec instead of detecting one
	Compression string `yaml:"compression" json:"compression"`
	// Headers are sent with HTTP requests
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// ColumnRule overrides how one column is cast and emitted
type ColumnRule struct {
	// Name renames the column in keyed shapes
	Name string `yaml:"name" json:"name"`
	// Type is string (default), int, float or boolean
	Type string `yaml:"type" json:"type"`
	// Array splits the raw value and casts each piece
	Array bool `yaml:"array" json:"array"`
	// ArraySep overrides LoadConfig.ArraySeparator
	ArraySep string `yaml:"arraySep" json:"arraySep"`
	// NullValues overrides LoadConfig.NullValues; nil inherits
	NullValues []string `yaml:"nullValues" json:"nullValues"`
	// Ignore drops the column
	Ignore bool `yaml:"ignore" json:"ignore"`
}

// NewLoadConfig returns a LoadConfig carrying the documented defaults
func NewLoadConfig() *LoadConfig {
	return &LoadConfig{
		Header:         true,
		Separator:      DefaultSeparator,
		QuoteChar:      DefaultQuoteChar,
		ArraySeparator: DefaultArraySeparator,
		FailOnError:    true,
	}
}

// SetLimit caps the load at n yielded rows
func (c *LoadConfig) SetLimit(n int64) {
	c.Limit = &n
}

// MaxRows returns the limit and whether one is set
func (c *LoadConfig) MaxRows() (int64, bool) {
	if c.Limit == nil {
		return 0, false
	}
	return *c.Limit, true
}

// EffectiveNullValues returns the global null-value set
func (c *LoadConfig) EffectiveNullValues() []string {
	if c.NullValues == nil {
		return []string{""}
	}
	return c.NullValues
}

// EffectiveArraySeparator returns the global array separator
func (c *LoadConfig) EffectiveArraySeparator() string {
	if c.ArraySeparator == "" {
		return DefaultArraySeparator
	}
	return c.ArraySeparator
}

// Clone returns a deep copy so the caller's value is never shared with a running load
func (c *LoadConfig) Clone() *LoadConfig {
	out := *c
	if c.Limit != nil {
		out.SetLimit(*c.Limit)
	}
	if c.NullValues != nil {
		out.NullValues = append([]string{}, c.NullValues...)
	}
	out.Ignore = append([]string(nil), c.Ignore...)
	out.Results = append([]string(nil), c.Results...)
	if c.Mapping != nil {
		out.Mapping = make(map[string]ColumnRule, len(c.Mapping))
		for k, v := range c.Mapping {
			if v.NullValues != nil {
				v.NullValues = append([]string{}, v.NullValues...)
			}
			out.Mapping[k] = v
		}
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}

// Validate checks the structural constraints of the options. Separator, quote,
// type and result-shape names are checked by the components that interpret them.
func (c *LoadConfig) Validate() error {
	if c.Skip < 0 {
		return errors.New(errors.ErrorTypeConfig, "skip cannot be negative").WithDetail("skip", c.Skip)
	}
	if n, ok := c.MaxRows(); ok && n < 0 {
		return errors.New(errors.ErrorTypeConfig, "limit cannot be negative").WithDetail("limit", n)
	}
	for name := range c.Mapping {
		if name == "" {
			return errors.New(errors.ErrorTypeConfig, "mapping key cannot be empty")
		}
	}
	return nil
}

// Config is the process-level configuration
type Config struct {
	// Import controls access to the local file system
	Import ImportConfig `yaml:"import" json:"import"`
	// Network controls HTTP fetching
	Network NetworkConfig `yaml:"network" json:"network"`
	// S3 configures s3:// locations
	S3 S3Config `yaml:"s3" json:"s3"`
	// GCS configures gs:// locations
	GCS GCSConfig `yaml:"gcs" json:"gcs"`
	// Load holds default options for loads started from this configuration
	Load *LoadConfig `yaml:"load" json:"load"`
	// Logging configures the zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`
	// Tracing configures OpenTelemetry
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ImportConfig controls local file access
type ImportConfig struct {
	// FileEnabled allows paths and file: URLs
	FileEnabled bool `yaml:"file_enabled" json:"file_enabled"`
	// Dir is the root that relative paths resolve against; paths may not escape it
	Dir string `yaml:"dir" json:"dir"`
}

// NetworkConfig controls HTTP fetching. Every timeout is bounded.
type NetworkConfig struct {
	// Enabled allows http, https, s3 and gs locations
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ConnectTimeout bounds dialing
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// TLSHandshakeTimeout bounds the TLS handshake
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout" json:"tls_handshake_timeout"`
	// ResponseHeaderTimeout bounds the wait for response headers
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" json:"response_header_timeout"`
	// ReadTimeout aborts a body read that receives no data for this long
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	// MaxRedirects caps the redirect chain
	MaxRedirects int `yaml:"max_redirects" json:"max_redirects"`
	// EnableHTTP2 negotiates HTTP/2 over TLS
	EnableHTTP2 bool `yaml:"enable_http2" json:"enable_http2"`
	// UserAgent is sent when the request carries none
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// BearerToken is sent as an OAuth2 bearer token when set
	BearerToken string `yaml:"bearer_token" json:"bearer_token"`
	// InsecureSkipVerify disables certificate verification
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// S3Config configures the s3:// fetcher
type S3Config struct {
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" json:"use_path_style"`
}

// GCSConfig configures the gs:// fetcher
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
	PrettyPrint bool    `yaml:"pretty_print" json:"pretty_print"`
}

// NewConfig creates a Config with production defaults: local files disabled,
// network enabled with bounded timeouts.
func NewConfig() *Config {
	return &Config{
		Import: ImportConfig{
			FileEnabled: false,
		},
		Network: DefaultNetworkConfig(),
		Load:    NewLoadConfig(),
		Logging: logger.DefaultConfig(),
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "csvload",
			SampleRate:  1.0,
		},
	}
}

// DefaultNetworkConfig returns bounded network defaults
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Enabled:               true,
		ConnectTimeout:        10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ReadTimeout:           60 * time.Second,
		MaxRedirects:          10,
		EnableHTTP2:           true,
		UserAgent:             "csvload/1.0",
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	n := c.Network
	if n.ConnectTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "network.connect_timeout must be positive")
	}
	if n.ResponseHeaderTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "network.response_header_timeout must be positive")
	}
	if n.ReadTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "network.read_timeout must be positive")
	}
	if n.MaxRedirects < 0 {
		return errors.New(errors.ErrorTypeConfig, "network.max_redirects cannot be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "tracing.sample_rate must be within [0, 1]")
	}
	if c.Load != nil {
		if err := c.Load.Validate(); err != nil {
			return err
		}
	}
	return nil
}
