// Package compression provides the stream codecs csvload understands when
// unwrapping a location: detection by name or by magic bytes, streaming
// decoders, and the matching encoders used for compressed output.
//
// # Overview
//
// Supported algorithms:
//   - Gzip, Deflate, Zstd, Snappy (framed), S2: github.com/klauspost/compress
//   - LZ4 (frame format): github.com/pierrec/lz4/v4
//   - XZ: github.com/ulikunitz/xz
//   - Bzip2: decode only
//
// # Basic Usage
//
//	alg := compression.Sniff(head)
//	rc, err := compression.NewReader(alg, src)
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
// Closing a reader returned by NewReader releases the decoder only; the
// source reader stays owned by the caller.
package compression

import (
	"bytes"
	"compress/bzip2"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/ajitpratap0/csvload/pkg/errors"
)

// Algorithm represents a stream compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Bzip2 represents bzip2 compression
	Bzip2 Algorithm = "bzip2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
	// XZ represents xz compression
	XZ Algorithm = "xz"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (reads snappy streams too)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// SniffLen is the number of leading bytes Sniff needs to recognise every algorithm.
const SniffLen = 10

var aliases = map[string]Algorithm{
	"":        None,
	"none":    None,
	"gz":      Gzip,
	"gzip":    Gzip,
	"bz2":     Bzip2,
	"bzip2":   Bzip2,
	"deflate": Deflate,
	"xz":      XZ,
	"zst":     Zstd,
	"zstd":    Zstd,
	"lz4":     LZ4,
	"sz":      Snappy,
	"snappy":  Snappy,
	"s2":      S2,
}

var extensions = map[string]Algorithm{
	".gz":   Gzip,
	".gzip": Gzip,
	".bz2":  Bzip2,
	".xz":   XZ,
	".zst":  Zstd,
	".lz4":  LZ4,
	".sz":   Snappy,
	".s2":   S2,
}

var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicBzip2  = []byte("BZh")
	magicXZ     = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4    = []byte{0x04, 0x22, 0x4d, 0x18}
	magicSnappy = []byte("\xff\x06\x00\x00sNaPpY")
	magicS2     = []byte("\xff\x06\x00\x00S2sTwO")
)

// ParseAlgorithm resolves an algorithm name or alias, case-insensitively.
// The empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	if alg, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return alg, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", name)
}

// FromExtension returns the algorithm implied by the final extension of name
// and the name with that extension removed. None is returned for unknown extensions.
func FromExtension(name string) (Algorithm, string) {
	ext := strings.ToLower(path.Ext(name))
	if alg, ok := extensions[ext]; ok {
		return alg, name[:len(name)-len(ext)]
	}
	return None, name
}

// Sniff identifies the algorithm from the head of a stream. Deflate has no
// signature and is never sniffed.
func Sniff(head []byte) Algorithm {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return Gzip
	case bytes.HasPrefix(head, magicZstd):
		return Zstd
	case bytes.HasPrefix(head, magicXZ):
		return XZ
	case bytes.HasPrefix(head, magicLZ4):
		return LZ4
	case bytes.HasPrefix(head, magicSnappy):
		return Snappy
	case bytes.HasPrefix(head, magicS2):
		return S2
	case len(head) >= 4 && bytes.HasPrefix(head, magicBzip2) && head[3] >= '1' && head[3] <= '9':
		return Bzip2
	}
	return None
}

// NewReader returns a streaming decoder for alg reading from r.
func NewReader(alg Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid gzip stream")
		}
		return gr, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Deflate:
		return flate.NewReader(r), nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid xz stream")
		}
		return io.NopCloser(xr), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid zstd stream")
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", alg)
	}
}

// NewWriter returns a streaming encoder for alg writing to w. Close flushes
// the encoder without closing w.
func NewWriter(alg Algorithm, w io.Writer, level Level) (io.WriteCloser, error) {
	switch alg {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, mapGzipLevel(level))
	case Deflate:
		return flate.NewWriter(w, mapDeflateLevel(level))
	case XZ:
		return xz.NewWriter(w)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case LZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return lw, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "compression algorithm %s cannot be written", alg)
	}
}

// Compress encodes data in one call.
func Compress(alg Algorithm, data []byte, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(alg, &buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes data in one call.
func Decompress(alg Algorithm, data []byte) ([]byte, error) {
	r, err := NewReader(alg, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}
