package resource

import (
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
)

// FileDisabledMessage is returned when local file access is not enabled
const FileDisabledMessage = "Import from files not enabled, please set import.file_enabled=true in your configuration"

// Policy decides which protocol classes may be opened. It is passed to the
// Resolver explicitly and never read from process state.
type Policy struct {
	// FileEnabled allows local paths and file: URLs
	FileEnabled bool
	// ImportDir confines local paths when set
	ImportDir string
	// NetworkEnabled allows http, https, s3 and gs
	NetworkEnabled bool
}

// PolicyFromConfig builds the policy described by cfg
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		FileEnabled:    cfg.Import.FileEnabled,
		ImportDir:      cfg.Import.Dir,
		NetworkEnabled: cfg.Network.Enabled,
	}
}

// Allow checks whether a class may be opened
func (p Policy) Allow(c Class) error {
	switch c {
	case ClassFile:
		if !p.FileEnabled {
			return errors.New(errors.ErrorTypePermission, FileDisabledMessage)
		}
	case ClassNetwork:
		if !p.NetworkEnabled {
			return errors.New(errors.ErrorTypePermission, "Network access not enabled, please set network.enabled=true in your configuration")
		}
	}
	return nil
}

// ResolveFile maps a local path onto the file system. Without an import
// directory the path is used as given. With one, relative paths resolve
// against it, absolute paths outside it are re-rooted inside it, and a path
// that climbs out of it is rejected.
func (p Policy) ResolveFile(path string) (string, error) {
	if p.ImportDir == "" {
		return filepath.Clean(path), nil
	}

	root, err := filepath.Abs(p.ImportDir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid import directory")
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	resolved := clean
	if !filepath.IsAbs(clean) || !within(root, clean) {
		resolved = filepath.Join(root, clean)
	}

	if !within(root, resolved) {
		return "", errors.New(errors.ErrorTypePermission, "location is outside the import directory").
			WithDetail("location", path)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
