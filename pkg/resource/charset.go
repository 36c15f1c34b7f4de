package resource

import (
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/csvload/pkg/errors"
)

// LookupEncoding resolves a charset label such as "latin1" or "windows-1252".
// The empty label means UTF-8.
func LookupEncoding(label string) (encoding.Encoding, string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return unicode.UTF8, "utf-8", nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", errors.Newf(errors.ErrorTypeConfig, "unknown encoding: %s", label)
	}
	return enc, name, nil
}

// DecodeReader returns a UTF-8 view of r decoded from the named charset. A
// leading byte-order mark is dropped, and invalid UTF-8 input is replaced
// with U+FFFD rather than failing the stream.
func DecodeReader(r io.Reader, label string) (io.Reader, error) {
	enc, _, err := LookupEncoding(label)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
