package models

import (
	"bytes"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Row is a projected data row. Shapes that were not requested are nil; a
// requested shape is never nil, even when it holds no values.
type Row struct {
	// LineNo is the 0-based data row index, skipped rows included
	LineNo int64 `json:"lineNo"`
	// Map holds column name -> typed value in header order; nil without a header
	Map *OrderedMap[any] `json:"map"`
	// List holds the typed values in column order
	List []any `json:"list"`
	// StringMap holds column name -> raw value; nil without a header
	StringMap *OrderedMap[string] `json:"stringMap"`
	// Strings holds the raw values in column order
	Strings []string `json:"strings"`
}

// MarshalJSON encodes the row with AppendJSON.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.AppendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AppendJSON writes r to buf as one JSON object holding lineNo and every
// non-nil shape. Strings are written without HTML escaping, in keyed and
// positional shapes alike.
func (r *Row) AppendJSON(buf *bytes.Buffer) error {
	buf.WriteString(`{"lineNo":`)
	buf.WriteString(strconv.FormatInt(r.LineNo, 10))

	if r.Map != nil {
		if err := appendField(buf, "map", r.Map.MarshalJSON); err != nil {
			return err
		}
	}
	if r.List != nil {
		if err := appendField(buf, "list", func() ([]byte, error) { return gojson.MarshalNoEscape(r.List) }); err != nil {
			return err
		}
	}
	if r.StringMap != nil {
		if err := appendField(buf, "stringMap", r.StringMap.MarshalJSON); err != nil {
			return err
		}
	}
	if r.Strings != nil {
		if err := appendField(buf, "strings", func() ([]byte, error) { return gojson.MarshalNoEscape(r.Strings) }); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendField(buf *bytes.Buffer, key string, encode func() ([]byte, error)) error {
	data, err := encode()
	if err != nil {
		return err
	}
	buf.WriteString(`,"`)
	buf.WriteString(key)
	buf.WriteString(`":`)
	buf.Write(data)
	return nil
}

// Projector builds the requested shapes of a Row from a TypedRow. It is
// compiled once per load and is safe to reuse across rows.
type Projector struct {
	shapes    ShapeSet
	hasHeader bool
	width     int
}

// NewProjector compiles a projector for shapes. columns are the retained
// output names in header order, nil when the stream has no header; keyed
// shapes are never built without one.
func NewProjector(shapes ShapeSet, columns []string) *Projector {
	if columns == nil {
		shapes &^= ShapeMap | ShapeStringMap
	}
	return &Projector{
		shapes:    shapes,
		hasHeader: columns != nil,
		width:     len(columns),
	}
}

// Shapes returns the shapes this projector builds.
func (p *Projector) Shapes() ShapeSet {
	return p.shapes
}

// Project builds a fresh Row from t.
func (p *Projector) Project(t TypedRow) *Row {
	row := &Row{LineNo: t.LineNo}

	if p.shapes.Has(ShapeMap) {
		row.Map = NewOrderedMap[any](p.width)
	}
	if p.shapes.Has(ShapeStringMap) {
		row.StringMap = NewOrderedMap[string](p.width)
	}
	if p.shapes.Has(ShapeList) {
		row.List = make([]any, 0, len(t.Cells))
	}
	if p.shapes.Has(ShapeStrings) {
		row.Strings = make([]string, 0, len(t.Cells))
	}

	for _, c := range t.Cells {
		named := p.hasHeader && !c.Extra
		if row.Map != nil && named {
			row.Map.Set(c.Name, c.Value)
		}
		if row.List != nil {
			row.List = append(row.List, c.Value)
		}
		if !c.Present {
			continue
		}
		if row.StringMap != nil && named {
			row.StringMap.Set(c.Name, c.Raw)
		}
		if row.Strings != nil {
			row.Strings = append(row.Strings, c.Raw)
		}
	}
	return row
}
