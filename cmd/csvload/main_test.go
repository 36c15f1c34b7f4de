package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/csvload/pkg/compression"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/json"
	"github.com/ajitpratap0/csvload/pkg/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func importDir(t *testing.T, files map[string]string) string {
	t.Helper()
	data := make(map[string][]byte, len(files))
	for name, content := range files {
		data[name] = []byte(content)
	}
	dir, _ := testutil.ImportDir(t, data)
	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "csvload v"+version)
	assert.Contains(t, out, "OS/Arch:")
}

func TestLoadLines(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "name,age\nSelma,8\nRana,11\n"})

	out, err := run(t, "load", "people.csv",
		"--file-enabled", "--import-dir", dir, "--log-level", "error",
		"--mapping", `{"age":{"type":"int"}}`,
		"--results", "map")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"lineNo":0,"map":{"name":"Selma","age":8}}`, lines[0])
	assert.Equal(t, `{"lineNo":1,"map":{"name":"Rana","age":11}}`, lines[1])
}

func TestLoadArrayCompressed(t *testing.T) {
	dir := importDir(t, map[string]string{"people.tsv": "name\tage\nSelma\t8\nRana\t11\nSelina\t18\n"})

	out, err := run(t, "load", "people.tsv",
		"--file-enabled", "--import-dir", dir, "--log-level", "error",
		"--sep", "TAB", "--skip", "1", "--limit", "1", "--results", "strings",
		"--format", "array", "--output-compression", "gzip")
	require.NoError(t, err)

	plain, err := compression.Decompress(compression.Gzip, []byte(out))
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(plain, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"Rana", "11"}, rows[0]["strings"])
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "name;age\nSelma;8\n"})
	t.Setenv("CSVLOAD_FILE_ENABLED", "true")
	t.Setenv("CSVLOAD_IMPORT_DIR", dir)
	t.Setenv("CSVLOAD_SEP", "SEMICOLON")
	t.Setenv("CSVLOAD_LOG_LEVEL", "error")

	out, err := run(t, "load", "people.csv", "--results", "list")
	require.NoError(t, err)
	assert.Equal(t, `{"lineNo":0,"list":["Selma","8"]}`, strings.TrimSpace(out))
}

func TestLoadZeroLimit(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "name\nSelma\n"})

	out, err := run(t, "load", "people.csv",
		"--file-enabled", "--import-dir", dir, "--log-level", "error", "--limit", "0")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadFileDisabled(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "name\nSelma\n"})

	_, err := run(t, "load", "people.csv", "--import-dir", dir, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = run(t, "load", "missing.zip!people.csv", "--file-enabled", "--import-dir", dir, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsResource(err))
}

func TestLoadStrictCastFails(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "name,age\nSelma,8\nRana,eleven\n"})

	out, err := run(t, "load", "people.csv",
		"--file-enabled", "--import-dir", dir, "--log-level", "error",
		"--mapping", `{"age":{"type":"int"}}`, "--results", "list")
	require.Error(t, err)
	assert.True(t, errors.IsTypeCast(err))
	// the row before the failure is still written
	assert.Equal(t, `{"lineNo":0,"list":["Selma",8]}`, strings.TrimSpace(out))
}

func TestLoadConfigFile(t *testing.T) {
	dir := importDir(t, map[string]string{"people.csv": "Selma|8\n"})
	cfgPath := filepath.Join(t.TempDir(), "csvload.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
import:
  file_enabled: true
  dir: `+dir+`
logging:
  level: error
load:
  header: false
  sep: PIPE
  results: [strings]
`), 0o600))

	out, err := run(t, "load", "people.csv", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, `{"lineNo":0,"strings":["Selma","8"]}`, strings.TrimSpace(out))
}

func TestLoadRejectsBadMapping(t *testing.T) {
	_, err := run(t, "load", "people.csv", "--mapping", "{not json")
	assert.ErrorContains(t, err, "invalid --mapping")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "people.csv", "--sep", "TAB", "--mapping", `{"age":{"type":"int"}}`)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = run(t, "validate", "people.csv", "--mapping", `{"age":{"type":"date"}}`)
	assert.True(t, errors.IsConfiguration(err))

	_, err = run(t, "validate", "people.csv", "--results", "map,table")
	assert.True(t, errors.IsConfiguration(err))
}
