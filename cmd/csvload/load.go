package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/internal/pipeline"
	"github.com/ajitpratap0/csvload/pkg/compression"
	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/json"
	"github.com/ajitpratap0/csvload/pkg/loader"
	"github.com/ajitpratap0/csvload/pkg/logger"
	"github.com/ajitpratap0/csvload/pkg/observability"
)

// envPrefix namespaces the environment variables that back every flag,
// e.g. CSVLOAD_SEP=TAB or CSVLOAD_FILE_ENABLED=true
const envPrefix = "CSVLOAD"

// newSettings binds the flags of cmd to a viper instance that also reads
// CSVLOAD_* environment variables. Flags win over the environment.
func newSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

func addLoadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "Path to a YAML process configuration")

	// per-load options
	f.Bool("header", true, "Treat the first row as column names")
	f.String("sep", config.DefaultSeparator, "Field separator: one character or TAB, COMMA, SEMICOLON, PIPE, SPACE")
	f.String("quote-char", config.DefaultQuoteChar, `Quote character; NONE disables quoting`)
	f.String("array-sep", config.DefaultArraySeparator, "Separator for array columns")
	f.StringSlice("null-values", nil, `Raw values read as null (default [""])`)
	f.Bool("fail-on-error", true, "Stop at the first value that cannot be cast")
	f.Int64("skip", 0, "Data rows to skip before the first emitted row")
	f.Int64("limit", 0, "Maximum rows to emit; unset means all")
	f.StringSlice("ignore", nil, "Columns to drop")
	f.String("mapping", "", `Per-column rules as JSON, e.g. {"age":{"type":"int"}}`)
	f.StringSlice("results", nil, "Output shapes: map, list, stringMap, strings (default all)")
	f.String("encoding", "", "Character encoding of the source, e.g. ISO-8859-1")
	f.String("compression", "", "Force a stream codec: NONE, GZIP, BZIP2, DEFLATE, ZSTD, XZ, LZ4, SNAPPY, S2")
	f.StringToString("http-header", nil, "HTTP request header, repeatable: --http-header Authorization=...")

	// process options
	f.Bool("file-enabled", false, "Allow local paths and file: URLs")
	f.String("import-dir", "", "Directory that local paths are confined to")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.Bool("trace", false, "Export OpenTelemetry spans to stderr")

	// output options
	f.String("format", "lines", "Output framing: lines or array")
	f.String("output-compression", "none", "Compress the output: none, gzip, zstd, lz4, s2, snappy, xz, deflate")
	f.Int("batch-size", 1000, "Rows per output write")
	f.Duration("flush-interval", time.Second, "Flush a partial batch after this long")
	f.Duration("timeout", 0, "Abort the load after this long; 0 means no timeout")
}

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <location>",
		Short: "Stream a delimited file as JSON rows",
		Long: `Stream the rows of a delimited file to stdout as JSON.

The location is a path, a file: URL, an http(s) URL, s3://bucket/key or
gs://bucket/object. Append !entry to pick a file inside a zip or tar archive.
Every flag can also be set through the environment, e.g. CSVLOAD_SEP=TAB.

Example:
  csvload load --file-enabled --mapping '{"age":{"type":"int"}}' people.csv
  csvload load 'https://host/export.zip!data/people.csv' --results map`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newSettings(cmd)
			if err != nil {
				return err
			}
			return runLoad(cmd, v, args[0])
		},
	}
	addLoadFlags(cmd)
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <location>",
		Short: "Check load options without reading the location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newSettings(cmd)
			if err != nil {
				return err
			}
			cfg, err := processConfig(v)
			if err != nil {
				return err
			}
			lc, err := loadConfig(v, cfg)
			if err != nil {
				return err
			}
			if err := loader.Validate(loader.NewRequest(args[0], lc)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	addLoadFlags(cmd)
	return cmd
}

// processConfig layers the YAML file (if any) and the process flags over
// the defaults
func processConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewConfig()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v.IsSet("file-enabled") {
		cfg.Import.FileEnabled = v.GetBool("file-enabled")
	}
	if v.IsSet("import-dir") {
		cfg.Import.Dir = v.GetString("import-dir")
	}
	if v.IsSet("log-level") && v.GetString("log-level") != "" {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if v.GetBool("trace") {
		cfg.Tracing.Enabled = true
	}
	return cfg, nil
}

// loadConfig starts from the load defaults of cfg and applies every load
// flag that was set explicitly
func loadConfig(v *viper.Viper, cfg *config.Config) (*config.LoadConfig, error) {
	lc := config.NewLoadConfig()
	if cfg.Load != nil {
		lc = cfg.Load.Clone()
	}

	if v.IsSet("header") {
		lc.Header = v.GetBool("header")
	}
	if v.IsSet("sep") {
		lc.Separator = v.GetString("sep")
	}
	if v.IsSet("quote-char") {
		lc.QuoteChar = v.GetString("quote-char")
	}
	if v.IsSet("array-sep") {
		lc.ArraySeparator = v.GetString("array-sep")
	}
	if v.IsSet("null-values") {
		// an explicit empty list disables null substitution
		lc.NullValues = append([]string{}, v.GetStringSlice("null-values")...)
	}
	if v.IsSet("fail-on-error") {
		lc.FailOnError = v.GetBool("fail-on-error")
	}
	if v.IsSet("skip") {
		lc.Skip = v.GetInt64("skip")
	}
	if v.IsSet("limit") {
		lc.SetLimit(v.GetInt64("limit"))
	}
	if v.IsSet("ignore") {
		lc.Ignore = v.GetStringSlice("ignore")
	}
	if v.IsSet("results") {
		lc.Results = v.GetStringSlice("results")
	}
	if v.IsSet("encoding") {
		lc.Encoding = v.GetString("encoding")
	}
	if v.IsSet("compression") {
		lc.Compression = v.GetString("compression")
	}
	if raw := v.GetString("mapping"); raw != "" {
		var mapping map[string]config.ColumnRule
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return nil, fmt.Errorf("invalid --mapping: %w", err)
		}
		lc.Mapping = mapping
	}
	if headers := v.GetStringMapString("http-header"); len(headers) > 0 {
		if lc.Headers == nil {
			lc.Headers = make(map[string]string, len(headers))
		}
		for k, val := range headers {
			lc.Headers[k] = val
		}
	}
	return lc, nil
}

func outputFormat(name string) (json.Format, error) {
	switch strings.ToLower(name) {
	case "", "lines", "jsonl":
		return json.Lines, nil
	case "array", "json":
		return json.Array, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", name)
	}
}

func runLoad(cmd *cobra.Command, v *viper.Viper, location string) error {
	cfg, err := processConfig(v)
	if err != nil {
		return err
	}
	lc, err := loadConfig(v, cfg)
	if err != nil {
		return err
	}
	format, err := outputFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	alg, err := compression.ParseAlgorithm(v.GetString("output-compression"))
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get().With(zap.String("component", "csvload-cli"))

	shutdown, err := observability.Init(cfg.Tracing, version, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	it, err := loader.Open(ctx, loader.NewRequest(location, lc),
		loader.WithConfig(cfg), loader.WithLogger(log))
	if err != nil {
		return err
	}
	sink, err := pipeline.NewJSONSink(cmd.OutOrStdout(), format, alg)
	if err != nil {
		_ = it.Close()
		return err
	}

	p := pipeline.New(it, sink, &pipeline.Config{
		BatchSize:     v.GetInt("batch-size"),
		FlushInterval: v.GetDuration("flush-interval"),
	}, log)
	result, err := p.Run(ctx)

	stats := it.Stats()
	log.Info("load completed",
		zap.String("request_id", it.RequestID()),
		zap.Int64("rows_read", stats.RowsRead),
		zap.Int64("rows_emitted", result.Rows),
		zap.Int64("cast_failures", stats.CastFailures),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Duration("duration", result.Duration),
		zap.Error(err))
	return err
}
