package archive

import (
	"io"
	"os"

	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/pool"
)

// SpoolDir is the directory for temporary zip spools; empty means os.TempDir
var SpoolDir = ""

// spool copies a non-seekable stream to a temporary file for random access
type spool struct {
	file *os.File
	size int64
}

func newSpool(r io.Reader) (*spool, error) {
	f, err := os.CreateTemp(SpoolDir, "csvload-*.zip")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create spool file")
	}

	buf := pool.CopyBuffers.Get()
	n, err := io.CopyBuffer(f, r, *buf)
	pool.CopyBuffers.Put(buf)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to spool archive")
	}
	return &spool{file: f, size: n}, nil
}

// Close closes and removes the spool file
func (s *spool) Close() error {
	closeErr := s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
