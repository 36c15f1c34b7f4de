// Package resource resolves a location string to a readable byte stream.
//
// A Resolver owns a registry of Fetchers keyed by URL scheme. Every location
// belongs to a protocol Class; the injected Policy decides which classes may
// be opened, and HTTP redirects may never leave the class of the original
// request.
//
//	resolver := resource.NewResolver(resource.PolicyFromConfig(cfg), cfg, logger)
//	defer resolver.Close()
//
//	res, err := resolver.Open(ctx, "https://example.com/data.csv", nil)
//	if err != nil {
//	    return err
//	}
//	defer res.Close()
package resource

import (
	"context"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/metrics"
)

// Class is the protocol class of a location
type Class int

const (
	// ClassUnknown is any scheme without a registered class
	ClassUnknown Class = iota
	// ClassFile covers local paths and file: URLs
	ClassFile
	// ClassNetwork covers http, https, s3 and gs
	ClassNetwork
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case ClassFile:
		return "file"
	case ClassNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// ClassOf returns the protocol class of a URL scheme
func ClassOf(scheme string) Class {
	switch strings.ToLower(scheme) {
	case "", "file":
		return ClassFile
	case "http", "https", "s3", "gs":
		return ClassNetwork
	default:
		return ClassUnknown
	}
}

// Location is a parsed location string
type Location struct {
	// Raw is the string as given
	Raw string
	// Scheme is the lower-cased URL scheme, "file" for plain paths
	Scheme string
	// URL is set for every form except plain paths
	URL *url.URL
	// Path is the local path of file locations
	Path string
}

// Class returns the protocol class of the location
func (l *Location) Class() Class {
	return ClassOf(l.Scheme)
}

// ParseLocation classifies a location string. Strings without a URL scheme,
// including Windows drive paths, are local paths.
func ParseLocation(raw string) (*Location, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "location cannot be empty")
	}

	scheme, ok := schemeOf(raw)
	if !ok {
		return &Location{Raw: raw, Scheme: "file", Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid location").WithDetail("location", raw)
	}

	loc := &Location{Raw: raw, Scheme: scheme, URL: u}
	if scheme == "file" {
		loc.Path = u.Path
		if loc.Path == "" {
			loc.Path = u.Opaque
		}
		if loc.Path == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "file location has no path").WithDetail("location", raw)
		}
	}
	return loc, nil
}

// schemeOf extracts an RFC 3986 scheme of at least two characters
func schemeOf(raw string) (string, bool) {
	i := strings.Index(raw, ":")
	if i < 2 {
		return "", false
	}
	for j, c := range raw[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", false
		}
	}
	return strings.ToLower(raw[:i]), true
}

// Resource is an open byte stream positioned at the start of content
type Resource struct {
	// Location is the location that was opened
	Location string
	// Scheme of the location
	Scheme string
	// Class of the location
	Class Class
	// Name is the path component used for format hints (file path, URL path, object key)
	Name string
	// ContentType is the declared media type, when the source has one
	ContentType string
	// Charset is the charset parameter of ContentType
	Charset string
	// Size is the content length, -1 when unknown
	Size int64

	body      io.ReadCloser
	bytesRead atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// NewResource creates a Resource over body. Fetchers call this; the Resolver
// fills in the location fields.
func NewResource(body io.ReadCloser, name, contentType string, size int64) *Resource {
	r := &Resource{
		Name:        name,
		ContentType: contentType,
		Size:        size,
		body:        body,
	}
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			r.Charset = params["charset"]
		}
	}
	return r
}

// Read implements io.Reader
func (r *Resource) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.bytesRead.Add(int64(n))
	return n, err
}

// ReaderAt exposes random access when the body is a local file. Containers
// that need it (zip) use this instead of spooling the stream.
func (r *Resource) ReaderAt() (io.ReaderAt, int64, bool) {
	if ra, ok := r.body.(io.ReaderAt); ok && r.Size >= 0 {
		return ra, r.Size, true
	}
	return nil, 0, false
}

// BytesRead returns the number of bytes read so far
func (r *Resource) BytesRead() int64 {
	return r.bytesRead.Load()
}

// Close releases the underlying stream. It is safe to call more than once.
func (r *Resource) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.body.Close()
		if r.Scheme != "" {
			metrics.BytesFetched.WithLabelValues(r.Scheme).Add(float64(r.bytesRead.Load()))
		}
	})
	return r.closeErr
}

// Extension returns the lower-cased extension of Name
func (r *Resource) Extension() string {
	return strings.ToLower(filepath.Ext(r.Name))
}

// Fetcher opens locations of the schemes it is registered for
type Fetcher interface {
	// Class is the protocol class the fetcher serves
	Class() Class
	// Fetch opens loc. headers apply to protocols that carry request headers.
	Fetch(ctx context.Context, loc *Location, headers map[string]string) (*Resource, error)
}

// Closer is implemented by fetchers holding clients that must be released
type Closer interface {
	Close() error
}
