// Package schema compiles per-column rules and applies them to raw rows.
//
// A Schema is compiled once per stream from the header and the load options.
// Mapping keys name a header column or, when no header column has that
// name, a zero-based position. Columns without a rule are strings that
// inherit the global null values and array separator.
package schema

import (
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/logger"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/models"
)

// Column is the compiled rule of one source position
type Column struct {
	// Index is the source position
	Index int
	// Source is the header name, empty beyond the header or without one
	Source string
	// Name is the output key; empty without a header
	Name     string
	Type     Type
	Array    bool
	ArraySep string
	Ignore   bool

	nulls map[string]struct{}
}

// IsNull reports whether raw is in the column's null-value set
func (c *Column) IsNull(raw string) bool {
	_, ok := c.nulls[raw]
	return ok
}

// Label names the column in messages
func (c *Column) Label() string {
	if c.Source != "" {
		return c.Source
	}
	return strconv.Itoa(c.Index)
}

// Option configures Compile
type Option func(*Schema)

// WithLogger sets the logger used for lenient cast failures
func WithLogger(log *zap.Logger) Option {
	return func(s *Schema) {
		if log != nil {
			s.log = log
		}
	}
}

// Schema applies column rules to raw rows
type Schema struct {
	header  []string
	columns []*Column

	// rules for positions outside the header
	byPosition      map[int]config.ColumnRule
	ignorePositions map[int]bool
	// columns built on demand beyond the header
	extra map[int]*Column

	defaultNulls    map[string]struct{}
	defaultArraySep string
	failOnError     bool

	castFailures atomic.Int64
	log          *zap.Logger
}

// Compile resolves the rules of cfg against header, which is nil when the
// stream has no header. Unknown type names are configuration errors.
func Compile(header []string, cfg *config.LoadConfig, opts ...Option) (*Schema, error) {
	s := &Schema{
		header:          header,
		byPosition:      make(map[int]config.ColumnRule),
		ignorePositions: make(map[int]bool),
		extra:           make(map[int]*Column),
		defaultNulls:    toSet(cfg.EffectiveNullValues()),
		defaultArraySep: cfg.EffectiveArraySeparator(),
		failOnError:     cfg.FailOnError,
		log:             logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("component", "schema"))

	names := make(map[string]bool, len(header))
	for _, h := range header {
		names[h] = true
	}

	byName := make(map[string]config.ColumnRule)
	for key, rule := range cfg.Mapping {
		if _, err := ParseType(rule.Type); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mapping for column "+key).
				WithDetail("column", key)
		}
		switch pos, isPos := position(key); {
		case names[key]:
			byName[key] = rule
		case isPos:
			s.byPosition[pos] = rule
		default:
			s.log.Debug("mapping key matches no column", zap.String("key", key))
		}
	}

	ignoreNames := make(map[string]bool, len(cfg.Ignore))
	for _, key := range cfg.Ignore {
		if names[key] {
			ignoreNames[key] = true
		} else if pos, ok := position(key); ok {
			s.ignorePositions[pos] = true
		}
	}

	s.columns = make([]*Column, len(header))
	for i, h := range header {
		rule, ok := byName[h]
		if !ok {
			rule = s.byPosition[i]
		}
		col, err := s.build(i, h, rule)
		if err != nil {
			return nil, err
		}
		col.Ignore = col.Ignore || ignoreNames[h]
		s.columns[i] = col
	}
	return s, nil
}

func position(key string) (int, bool) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (s *Schema) build(index int, source string, rule config.ColumnRule) (*Column, error) {
	typ, err := ParseType(rule.Type)
	if err != nil {
		return nil, err
	}
	col := &Column{
		Index:    index,
		Source:   source,
		Name:     source,
		Type:     typ,
		Array:    rule.Array,
		ArraySep: rule.ArraySep,
		Ignore:   rule.Ignore || s.ignorePositions[index],
		nulls:    s.defaultNulls,
	}
	if index < len(s.header) && rule.Name != "" {
		col.Name = rule.Name
	}
	if col.ArraySep == "" {
		col.ArraySep = s.defaultArraySep
	}
	if rule.NullValues != nil {
		col.nulls = toSet(rule.NullValues)
	}
	return col, nil
}

// Header returns the stream header the schema was compiled against
func (s *Schema) Header() []string {
	return s.header
}

// Columns returns the retained output names in header order, or nil when
// the stream has no header.
func (s *Schema) Columns() []string {
	if s.header == nil {
		return nil
	}
	out := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		if !c.Ignore {
			out = append(out, c.Name)
		}
	}
	return out
}

// Column returns the compiled rule for position i
func (s *Schema) Column(i int) *Column {
	if i < len(s.columns) {
		return s.columns[i]
	}
	if c, ok := s.extra[i]; ok {
		return c
	}
	// rules were validated by Compile
	c, _ := s.build(i, "", s.byPosition[i])
	s.extra[i] = c
	return c
}

// CastFailures returns the number of values nulled by lenient casting
func (s *Schema) CastFailures() int64 {
	return s.castFailures.Load()
}

// Apply casts raw into a TypedRow. Positions covered by the header but
// missing from the row become absent nil cells; ignored columns are dropped.
// In strict mode the first cast failure is returned as a type cast error.
func (s *Schema) Apply(raw models.RawRow) (models.TypedRow, error) {
	width := len(s.columns)
	if len(raw.Fields) > width {
		width = len(raw.Fields)
	}

	row := models.TypedRow{LineNo: raw.LineNo, Cells: make([]models.Cell, 0, width)}
	for i := 0; i < width; i++ {
		col := s.Column(i)
		if col.Ignore {
			continue
		}
		value, present := raw.Field(i)
		cell := models.Cell{Name: col.Name, Extra: i >= len(s.columns), Raw: value, Present: present}
		if present {
			v, err := s.cast(col, value, raw.LineNo)
			if err != nil {
				return models.TypedRow{}, err
			}
			cell.Value = v
		}
		row.Cells = append(row.Cells, cell)
	}
	return row, nil
}

func (s *Schema) cast(col *Column, raw string, lineNo int64) (any, error) {
	if col.IsNull(raw) {
		return nil, nil
	}
	if !col.Array {
		return s.castScalar(col, raw, lineNo)
	}

	pieces := strings.Split(raw, col.ArraySep)
	out := make([]any, len(pieces))
	for i, p := range pieces {
		if col.IsNull(p) {
			continue
		}
		v, err := s.castScalar(col, p, lineNo)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Schema) castScalar(col *Column, raw string, lineNo int64) (any, error) {
	v, err := col.Type.Cast(raw)
	if err == nil {
		return v, nil
	}

	if s.failOnError {
		metrics.CastFailures.WithLabelValues(col.Type.String(), "strict").Inc()
		return nil, errors.Newf(errors.ErrorTypeTypeCast, "cannot cast %q to %s in column %s at line %d",
			raw, col.Type, col.Label(), lineNo).
			WithDetail("lineNo", lineNo).
			WithDetail("column", col.Label()).
			WithDetail("value", raw)
	}

	metrics.CastFailures.WithLabelValues(col.Type.String(), "lenient").Inc()
	s.castFailures.Add(1)
	s.log.Debug("cast failed, value set to null",
		zap.Int64("line_no", lineNo),
		zap.String("column", col.Label()),
		zap.String("type", col.Type.String()),
		zap.String("value", raw))
	return nil, nil
}
