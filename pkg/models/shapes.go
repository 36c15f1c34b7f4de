package models

import (
	"strings"

	"github.com/ajitpratap0/csvload/pkg/errors"
)

// ShapeSet is a bitmask of the output shapes built for each row.
type ShapeSet uint8

const (
	// ShapeMap builds Row.Map
	ShapeMap ShapeSet = 1 << iota
	// ShapeList builds Row.List
	ShapeList
	// ShapeStringMap builds Row.StringMap
	ShapeStringMap
	// ShapeStrings builds Row.Strings
	ShapeStrings

	// AllShapes is the default when no shape is requested
	AllShapes = ShapeMap | ShapeList | ShapeStringMap | ShapeStrings
)

var shapeNames = []struct {
	name  string
	shape ShapeSet
}{
	{"map", ShapeMap},
	{"list", ShapeList},
	{"stringMap", ShapeStringMap},
	{"strings", ShapeStrings},
}

// ParseShapes resolves shape names case-insensitively. An empty list selects
// every shape; an unknown name is a configuration error.
func ParseShapes(names []string) (ShapeSet, error) {
	if len(names) == 0 {
		return AllShapes, nil
	}
	var set ShapeSet
	for _, name := range names {
		s, ok := lookupShape(name)
		if !ok {
			return 0, errors.Newf(errors.ErrorTypeConfig,
				"unknown result shape %q, expected one of map, list, stringMap, strings", name)
		}
		set |= s
	}
	return set, nil
}

func lookupShape(name string) (ShapeSet, bool) {
	name = strings.TrimSpace(name)
	for _, n := range shapeNames {
		if strings.EqualFold(n.name, name) {
			return n.shape, true
		}
	}
	return 0, false
}

// Has reports whether every shape in s is selected.
func (set ShapeSet) Has(s ShapeSet) bool {
	return set&s == s
}

// String lists the selected shapes, comma separated.
func (set ShapeSet) String() string {
	var names []string
	for _, n := range shapeNames {
		if set.Has(n.shape) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}
