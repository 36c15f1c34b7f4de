// Package testutil provides testing utilities for csvload
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/csvload/pkg/config"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// canceled when the test ends.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ImportDir writes files into a fresh temporary directory and returns a
// process configuration confined to it with file access enabled.
func ImportDir(t *testing.T, files map[string][]byte) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	cfg := config.NewConfig()
	cfg.Import.FileEnabled = true
	cfg.Import.Dir = dir
	cfg.Network.EnableHTTP2 = false
	return dir, cfg
}
