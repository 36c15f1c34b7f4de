package schema

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/csvload/pkg/errors"
)

// Type is the target type of a column
type Type int

const (
	// String keeps the raw value
	String Type = iota
	// Int parses a base-10 64-bit integer
	Int
	// Float parses a 64-bit float
	Float
	// Boolean accepts true or false in any case
	Boolean
)

var typeNames = map[string]Type{
	"":        String,
	"string":  String,
	"str":     String,
	"text":    String,
	"int":     Int,
	"integer": Int,
	"long":    Int,
	"float":   Float,
	"double":  Float,
	"number":  Float,
	"boolean": Boolean,
	"bool":    Boolean,
}

// ParseType resolves a type name or alias, case-insensitively. The empty
// name is String.
func ParseType(name string) (Type, error) {
	if t, ok := typeNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return String, errors.Newf(errors.ErrorTypeConfig,
		"unknown column type %q, expected string, int, float or boolean", name)
}

// String returns the canonical type name
func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	default:
		return "string"
	}
}

// Cast converts s to t. The whole string must parse; no trimming is applied.
func (t Type) Cast(s string) (any, error) {
	switch t {
	case Int:
		return strconv.ParseInt(s, 10, 64)
	case Float:
		return strconv.ParseFloat(s, 64)
	case Boolean:
		switch {
		case strings.EqualFold(s, "true"):
			return true, nil
		case strings.EqualFold(s, "false"):
			return false, nil
		}
		return nil, strconv.ErrSyntax
	default:
		return s, nil
	}
}
