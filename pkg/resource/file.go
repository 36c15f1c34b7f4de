package resource

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/ajitpratap0/csvload/pkg/errors"
)

// fileFetcher opens local paths and file: URLs
type fileFetcher struct {
	policy Policy
}

func (f *fileFetcher) Class() Class {
	return ClassFile
}

func (f *fileFetcher) Fetch(_ context.Context, loc *Location, _ map[string]string) (*Resource, error) {
	path, err := f.policy.ResolveFile(loc.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) //nolint:gosec // G304: path is confined by the policy
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "file not found").WithDetail("location", loc.Raw)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to open file").WithDetail("location", loc.Raw)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to stat file").WithDetail("location", loc.Raw)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, errors.New(errors.ErrorTypeResource, "location is a directory").WithDetail("location", loc.Raw)
	}

	return NewResource(file, path, "", info.Size()), nil
}
