// Package archive unwraps containers and compressed streams so the caller
// reads the bytes of a single delimited file.
//
// A location may name an entry inside an archive with a "!" selector after
// the archive's file name:
//
//	base, entry := archive.SplitLocation("https://host/export.tgz!csv/test.csv")
//	// base = "https://host/export.tgz", entry = "csv/test.csv"
//
// The container kind is resolved once, before any row is read, from the
// explicit compression option, then the name's extension, then the magic
// bytes at the head of the stream.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/compression"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/logger"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/observability"
)

// Kind is the container kind of a stream
type Kind int

const (
	// None is a plain stream
	None Kind = iota
	// Zip is a zip archive
	Zip
	// Tar is an uncompressed tar archive
	Tar
	// Gzip is a single compressed stream; Format.Codec names the codec
	Gzip
	// TarGzip is a compressed tar archive; Format.Codec names the codec
	TarGzip
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case Gzip:
		return "gzip"
	case TarGzip:
		return "tar.gzip"
	default:
		return "none"
	}
}

// Format is the resolved container kind and stream codec
type Format struct {
	Kind  Kind
	Codec compression.Algorithm
}

// String returns "kind" or "kind/codec"
func (f Format) String() string {
	if f.Codec == "" || f.Codec == compression.None {
		return f.Kind.String()
	}
	return f.Kind.String() + "/" + string(f.Codec)
}

// Hint carries what is known about a stream before it is read
type Hint struct {
	// Name is the file name or URL path used for extension hints
	Name string
	// Compression forces a codec; empty means detect
	Compression string
	// Selector is the entry path inside an archive
	Selector string
}

// SelectorSep separates a location from an archive entry path
const SelectorSep = "!"

// SplitLocation splits "archive!entry" at the last "!" whose left side names
// an archive or compressed file by extension. A "!" anywhere else is part of
// the location, which is then returned whole with an empty entry.
func SplitLocation(location string) (string, string) {
	end := len(location)
	for {
		i := strings.LastIndex(location[:end], SelectorSep)
		if i < 0 {
			return location, ""
		}
		base := location[:i]
		if _, _, known := fromName(stripQuery(base)); known {
			return base, location[i+1:]
		}
		end = i
	}
}

// stripQuery drops a URL query and fragment so the extension of the path
// can be read
func stripQuery(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}

const peekSize = 512

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
)

// sizedReaderAt is implemented by sources that support random access
type sizedReaderAt interface {
	ReaderAt() (io.ReaderAt, int64, bool)
}

// Open detects the format of src and returns the bytes of the selected entry,
// or of the decompressed stream for single-stream formats. Open takes
// ownership of src: it is closed by the returned reader's Close, or before
// Open returns an error.
func Open(ctx context.Context, src io.ReadCloser, hint Hint, log *zap.Logger) (rc io.ReadCloser, format Format, err error) {
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("component", "archive"))

	_, span := observability.StartSpan(ctx, observability.SpanUnwrap)
	defer func() {
		span.SetAttribute("format", format.String())
		span.End(err)
	}()

	chain := &closeChain{}
	chain.push(src.Close)
	defer func() {
		if err != nil {
			_ = chain.Close()
		}
	}()

	buffered := bufio.NewReaderSize(src, 64*1024)
	format, inner, err := detect(buffered, hint, chain)
	if err != nil {
		return nil, format, err
	}
	metrics.ArchiveFormats.WithLabelValues(format.Kind.String(), string(format.Codec)).Inc()

	switch format.Kind {
	case None, Gzip:
		if hint.Selector != "" {
			log.Warn("entry selector ignored for single-stream format",
				zap.String("selector", hint.Selector),
				zap.String("format", format.String()))
		}
		chain.Reader = inner
		return chain, format, nil

	case Tar, TarGzip:
		entry, err := openTarEntry(inner, hint)
		if err != nil {
			return nil, format, err
		}
		chain.Reader = entry
		return chain, format, nil

	case Zip:
		entry, err := openZipEntry(src, buffered, hint, chain)
		if err != nil {
			return nil, format, err
		}
		chain.Reader = entry
		return chain, format, nil
	}
	return nil, format, errors.Newf(errors.ErrorTypeInternal, "unhandled container kind %d", format.Kind)
}

// detect resolves the format and returns the reader the container parser
// should consume: the decompressed stream for compressed kinds, buffered
// otherwise. Decoders are pushed onto chain.
func detect(buffered *bufio.Reader, hint Hint, chain *closeChain) (Format, io.Reader, error) {
	codec := compression.None
	explicit := strings.TrimSpace(hint.Compression) != ""
	if explicit {
		alg, err := compression.ParseAlgorithm(hint.Compression)
		if err != nil {
			return Format{}, nil, err
		}
		codec = alg
	}

	kind, extCodec, known := fromName(hint.Name)
	if !explicit {
		codec = extCodec
	} else if codec == compression.None && (kind == Gzip || kind == TarGzip) {
		// compression: NONE overrides a compressed extension
		if kind == TarGzip {
			kind = Tar
		} else {
			kind = None
		}
	} else if codec != compression.None && kind != TarGzip {
		kind = Gzip
	}

	if !known && !explicit {
		head, _ := buffered.Peek(peekSize)
		sniffed := compression.Sniff(head)
		switch {
		case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmptyMagic):
			return Format{Kind: Zip, Codec: compression.None}, buffered, nil
		case sniffed != compression.None:
			kind, codec = Gzip, sniffed
		case isTar(head):
			return Format{Kind: Tar, Codec: compression.None}, buffered, nil
		default:
			return Format{Kind: None, Codec: compression.None}, buffered, nil
		}
	}

	switch kind {
	case Zip, Tar:
		return Format{Kind: kind, Codec: compression.None}, buffered, nil
	case None:
		if codec == compression.None {
			return Format{Kind: None, Codec: compression.None}, buffered, nil
		}
		kind = Gzip
	}

	dec, err := compression.NewReader(codec, buffered)
	if err != nil {
		return Format{Kind: kind, Codec: codec}, nil, err
	}
	chain.push(dec.Close)

	if kind == TarGzip {
		return Format{Kind: TarGzip, Codec: codec}, dec, nil
	}

	// a compressed stream may still hold a tar archive
	inner := bufio.NewReaderSize(dec, 64*1024)
	head, _ := inner.Peek(peekSize)
	if isTar(head) {
		return Format{Kind: TarGzip, Codec: codec}, inner, nil
	}
	return Format{Kind: Gzip, Codec: codec}, inner, nil
}

// fromName derives a kind and codec from the extension of name. known is
// false when the name carries no container or codec extension.
func fromName(name string) (Kind, compression.Algorithm, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip, compression.None, true
	case strings.HasSuffix(lower, ".tgz"):
		return TarGzip, compression.Gzip, true
	case strings.HasSuffix(lower, ".tar"):
		return Tar, compression.None, true
	}

	alg, rest := compression.FromExtension(lower)
	if alg == compression.None {
		return None, compression.None, false
	}
	if strings.HasSuffix(rest, ".tar") {
		return TarGzip, alg, true
	}
	return Gzip, alg, true
}

// isTar looks for the ustar magic at offset 257 of a tar header block
func isTar(head []byte) bool {
	return len(head) >= 262 && bytes.Equal(head[257:262], []byte("ustar"))
}

func normalizeEntry(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return name
		}
	}
}

func entryNotFound(hint Hint) error {
	if hint.Selector == "" {
		return errors.Newf(errors.ErrorTypeEntryNotFound, "archive %s contains no file entries", hint.Name).
			WithDetail("archive", hint.Name)
	}
	return errors.Newf(errors.ErrorTypeEntryNotFound, "entry %s not found in archive %s", hint.Selector, hint.Name).
		WithDetail("archive", hint.Name).
		WithDetail("entry", hint.Selector)
}

// openTarEntry advances r to the selected entry, or to the first regular
// file when no selector is given.
func openTarEntry(r io.Reader, hint Hint) (io.Reader, error) {
	want := normalizeEntry(hint.Selector)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, entryNotFound(hint)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid tar archive").WithDetail("archive", hint.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if want == "" || normalizeEntry(hdr.Name) == want {
			return tr, nil
		}
	}
}

// openZipEntry opens the selected zip entry. Sources without random access
// are spooled to a temporary file removed on Close.
func openZipEntry(src io.Reader, buffered io.Reader, hint Hint, chain *closeChain) (io.Reader, error) {
	var (
		ra   io.ReaderAt
		size int64
		ok   bool
	)
	if s, isSized := src.(sizedReaderAt); isSized {
		ra, size, ok = s.ReaderAt()
	}
	if !ok {
		spool, err := newSpool(buffered)
		if err != nil {
			return nil, err
		}
		chain.push(spool.Close)
		ra, size = spool.file, spool.size
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid zip archive").WithDetail("archive", hint.Name)
	}

	want := normalizeEntry(hint.Selector)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if want != "" && normalizeEntry(f.Name) != want {
			continue
		}
		entry, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open zip entry").
				WithDetail("archive", hint.Name).
				WithDetail("entry", f.Name)
		}
		chain.push(entry.Close)
		return entry, nil
	}
	return nil, entryNotFound(hint)
}

// closeChain reads from Reader and runs its closers in reverse push order,
// so the innermost reader is released first and the source last.
type closeChain struct {
	io.Reader
	closers []func() error
	once    sync.Once
	err     error
}

func (c *closeChain) push(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases every layer once and returns the first error
func (c *closeChain) Close() error {
	c.once.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil && c.err == nil {
				c.err = err
			}
		}
	})
	return c.err
}
