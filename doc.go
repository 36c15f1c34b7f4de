// Package csvload streams the rows of delimited text files as typed records.
//
// A load takes a location and a set of options and yields one row per data
// line. Each row can be shaped four ways: a map keyed by column name with
// typed values, a positional list of typed values, a map of raw strings and
// a positional list of raw strings.
//
// # Architecture
//
// A load passes through six stages, each in its own package:
//
//  1. pkg/resource resolves the location (path, file: URL, http(s), s3://,
//     gs://) to a byte stream. Local file access is disabled unless the
//     configuration enables it, and an HTTP redirect may never switch to a
//     different protocol.
//  2. pkg/archive unwraps zip and tar archives and compressed streams and
//     selects the entry named after "!" in the location.
//  3. pkg/tokenizer splits the decoded text into fields, honoring the
//     separator and the quote character.
//  4. pkg/schema casts fields to string, int, float or boolean, splits array
//     columns and substitutes null values.
//  5. pkg/models projects each typed row into the requested result shapes.
//  6. pkg/loader composes the stages behind a pull-based Iterator that
//     releases every resource on exhaustion, error, limit or Close.
//
// # Quick Start
//
//	cfg := config.NewLoadConfig()
//	cfg.Separator = "TAB"
//	cfg.Mapping = map[string]config.ColumnRule{
//	    "age":  {Type: "int"},
//	    "tags": {Array: true},
//	}
//
//	it, err := loader.Open(ctx, loader.NewRequest("https://host/export.zip!people.tsv", cfg))
//	if err != nil {
//	    return err
//	}
//	for row, err := range it.All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(row.LineNo, row.Map)
//	}
//
// # Command Line
//
// cmd/csvload writes the rows of a load to stdout as JSON lines or a JSON
// array, optionally compressed:
//
//	csvload load --file-enabled --import-dir /data --mapping '{"age":{"type":"int"}}' people.csv
//
// Every flag can also be set through a CSVLOAD_* environment variable, and
// process settings can be read from a YAML file with --config. Environment
// variables are substituted in the file with ${VAR_NAME} syntax.
//
// # Key Packages
//
//	pkg/config        - Load options and process configuration
//	pkg/errors        - Typed errors (config, security, resource, type cast, ...)
//	pkg/logger        - Structured logging with zap
//	pkg/metrics       - Prometheus counters and histograms
//	pkg/observability - OpenTelemetry spans
//	pkg/compression   - Stream codecs (gzip, zstd, xz, lz4, bzip2, ...)
//	pkg/json          - Row encoding
//	internal/pipeline - Batching driver from an iterator to a sink
package csvload
