package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvload/pkg/compression"
	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/metrics"
	"github.com/ajitpratap0/csvload/pkg/models"
	"github.com/ajitpratap0/csvload/pkg/resource"
)

const peopleCSV = "name,age\nSelma,8\nRana,11\nSelina,18\n"

// fixture is an import directory with file access enabled
type fixture struct {
	t   *testing.T
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Import.FileEnabled = true
	cfg.Import.Dir = dir
	cfg.Network.EnableHTTP2 = false
	return &fixture{t: t, dir: dir, cfg: cfg}
}

func (f *fixture) write(name string, data []byte) string {
	f.t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, data, 0o600))
	return name
}

func (f *fixture) opts() []Option {
	return []Option{WithConfig(f.cfg), WithLogger(zap.NewNop())}
}

func (f *fixture) collect(location string, cfg *config.LoadConfig) []*models.Row {
	f.t.Helper()
	it, err := Open(context.Background(), NewRequest(location, cfg), f.opts()...)
	require.NoError(f.t, err)
	defer it.Close()

	var rows []*models.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	require.NoError(f.t, it.Err())
	return rows
}

func mapOf(row *models.Row) map[string]any {
	if row.Map == nil {
		return nil
	}
	return row.Map.ToMap()
}

func TestScenarioMapAndList(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	cfg := config.NewLoadConfig()
	cfg.Results = []string{"map", "list"}
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 3)
	want := []struct {
		name, age string
	}{{"Selma", "8"}, {"Rana", "11"}, {"Selina", "18"}}
	for i, w := range want {
		assert.Equal(t, int64(i), rows[i].LineNo)
		assert.Equal(t, map[string]any{"name": w.name, "age": w.age}, mapOf(rows[i]))
		assert.Equal(t, []string{"name", "age"}, rows[i].Map.Keys())
		assert.Equal(t, []any{w.name, w.age}, rows[i].List)
		assert.Nil(t, rows[i].StringMap)
		assert.Nil(t, rows[i].Strings)
	}
}

func TestScenarioSkipAndLimit(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	cfg := config.NewLoadConfig()
	cfg.Skip = 1
	cfg.SetLimit(1)
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].LineNo)
	v, _ := rows[0].Map.Get("name")
	assert.Equal(t, "Rana", v)
}

func TestScenarioIntArray(t *testing.T) {
	f := newFixture(t)
	loc := f.write("ages.csv", []byte("name,ages\nfamily,8:11:18\n"))

	cfg := config.NewLoadConfig()
	cfg.Mapping = map[string]config.ColumnRule{
		"ages": {Type: "int", Array: true, ArraySep: ":"},
	}
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 1)
	ages, _ := rows[0].Map.Get("ages")
	assert.Equal(t, []any{int64(8), int64(11), int64(18)}, ages)
	raw, _ := rows[0].StringMap.Get("ages")
	assert.Equal(t, "8:11:18", raw)
	assert.Equal(t, "8:11:18", rows[0].Strings[1])
}

func TestScenarioTabAlias(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.tsv", []byte(strings.ReplaceAll(peopleCSV, ",", "\t")))

	alias := config.NewLoadConfig()
	alias.Separator = "TAB"
	literal := config.NewLoadConfig()
	literal.Separator = "\t"

	a := f.collect(loc, alias)
	b := f.collect(loc, literal)
	require.Len(t, a, 3)
	assert.Equal(t, b, a)
	assert.Equal(t, []string{"Rana", "11"}, a[1].Strings)
}

func zipBytes(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	out, err := compression.Compress(compression.Gzip, data, compression.Default)
	require.NoError(t, err)
	return out
}

func TestScenarioArchiveEntry(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{
		"csv/other.csv": "x,y\n1,2\n",
		"csv/data.csv":  peopleCSV,
		"readme.txt":    "not csv",
	}
	loc := f.write("archive.zip", zipBytes(t, files, []string{"readme.txt", "csv/other.csv", "csv/data.csv"}))

	rows := f.collect(loc+"!csv/data.csv", nil)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Selma", "8"}, rows[0].Strings)

	_, err := Open(context.Background(), NewRequest(loc+"!csv/missing.csv", nil), f.opts()...)
	require.Error(t, err)
	assert.True(t, errors.IsEntryNotFound(err))
}

func TestScenarioLenientCast(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte("name,age\nSelma,8\nRana,eleven\nSelina,18\n"))

	cfg := config.NewLoadConfig()
	cfg.FailOnError = false
	cfg.Mapping = map[string]config.ColumnRule{"age": {Type: "int"}}

	it, err := Open(context.Background(), NewRequest(loc, cfg), f.opts()...)
	require.NoError(t, err)
	defer it.Close()

	var ages []any
	for it.Next() {
		v, _ := it.Row().Map.Get("age")
		ages = append(ages, v)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []any{int64(8), nil, int64(18)}, ages)
	assert.Equal(t, int64(1), it.Stats().CastFailures)
}

func TestStrictCastStopsStream(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte("name,age\nSelma,8\nRana,eleven\nSelina,18\n"))

	cfg := config.NewLoadConfig()
	cfg.Mapping = map[string]config.ColumnRule{"age": {Type: "int"}}

	it, err := Open(context.Background(), NewRequest(loc, cfg), f.opts()...)
	require.NoError(t, err)

	require.True(t, it.Next())
	first := it.Row()
	assert.False(t, it.Next())
	assert.False(t, it.Next())
	assert.True(t, errors.IsTypeCast(it.Err()))
	assert.Contains(t, it.Err().Error(), "eleven")

	v, _ := first.Map.Get("age")
	assert.Equal(t, int64(8), v)
	assert.NoError(t, it.Close())
}

func TestRowCountProperty(t *testing.T) {
	f := newFixture(t)
	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "%d,v%d\n", i, i)
	}
	loc := f.write("rows.csv", []byte(sb.String()))

	shapes := [][]string{nil, {"map"}, {"list"}, {"stringMap"}, {"strings"}, {"map", "strings"}}
	for _, skip := range []int64{0, 1, 10, 25, 30} {
		// -1 leaves the limit unset
		for _, limit := range []int64{-1, 0, 1, 5, 100} {
			want := 25 - skip
			if want < 0 {
				want = 0
			}
			if limit >= 0 && want > limit {
				want = limit
			}
			for _, results := range shapes {
				cfg := config.NewLoadConfig()
				cfg.Skip, cfg.Results = skip, results
				if limit >= 0 {
					cfg.SetLimit(limit)
				}
				rows := f.collect(loc, cfg)
				assert.Len(t, rows, int(want), "skip=%d limit=%d results=%v", skip, limit, results)
				for i, r := range rows {
					assert.Equal(t, skip+int64(i), r.LineNo)
				}
			}
		}
	}
}

func TestStringRoundTripProperty(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	for _, row := range f.collect(loc, nil) {
		require.Len(t, row.List, len(row.Strings))
		for i := range row.Strings {
			assert.Equal(t, row.Strings[i], row.List[i])
		}
		assert.Equal(t, row.Map.Keys(), row.StringMap.Keys())
		for k, v := range row.StringMap.All() {
			mv, _ := row.Map.Get(k)
			assert.Equal(t, v, mv)
		}
	}
}

func TestNullSubstitutionProperty(t *testing.T) {
	f := newFixture(t)
	loc := f.write("nulls.csv", []byte("name,age,city\nSelma,NA,\nRana,11,Rome\n"))

	cfg := config.NewLoadConfig()
	cfg.NullValues = []string{"", "NA"}
	cfg.Mapping = map[string]config.ColumnRule{"age": {Type: "int"}}
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"name": "Selma", "age": nil, "city": nil}, mapOf(rows[0]))
	assert.Equal(t, []any{"Selma", nil, nil}, rows[0].List)
	assert.Equal(t, []string{"Selma", "NA", ""}, rows[0].Strings)
	raw, _ := rows[0].StringMap.Get("age")
	assert.Equal(t, "NA", raw)
}

func TestShapeSubsetProperty(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte("name,age,tags\nSelma,8,a;b\nRana,,c\n"))

	mapping := map[string]config.ColumnRule{"age": {Type: "int"}, "tags": {Array: true}}
	all := config.NewLoadConfig()
	all.Mapping = mapping
	full := f.collect(loc, all)

	for _, shape := range []string{"map", "list", "stringMap", "strings"} {
		cfg := config.NewLoadConfig()
		cfg.Mapping = mapping
		cfg.Results = []string{shape}
		rows := f.collect(loc, cfg)
		require.Len(t, rows, len(full))
		for i, r := range rows {
			switch shape {
			case "map":
				assert.Equal(t, mapOf(full[i]), mapOf(r))
			case "list":
				assert.Equal(t, full[i].List, r.List)
			case "stringMap":
				assert.Equal(t, full[i].StringMap.ToMap(), r.StringMap.ToMap())
			case "strings":
				assert.Equal(t, full[i].Strings, r.Strings)
			}
		}
	}
}

func TestFieldCountMismatch(t *testing.T) {
	f := newFixture(t)
	loc := f.write("ragged.csv", []byte("a,b,c\n1\n1,2,3,4\n"))
	rows := f.collect(loc, nil)

	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"a": "1", "b": nil, "c": nil}, mapOf(rows[0]))
	assert.Equal(t, []any{"1", nil, nil}, rows[0].List)
	assert.Equal(t, []string{"a"}, rows[0].StringMap.Keys())
	assert.Equal(t, []string{"1"}, rows[0].Strings)

	assert.Equal(t, 3, rows[1].Map.Len())
	assert.Equal(t, []any{"1", "2", "3", "4"}, rows[1].List)
	assert.Equal(t, []string{"1", "2", "3", "4"}, rows[1].Strings)
}

func TestNoHeader(t *testing.T) {
	f := newFixture(t)
	loc := f.write("plain.csv", []byte("Selma,8\nRana,11\n"))

	cfg := config.NewLoadConfig()
	cfg.Header = false
	cfg.Mapping = map[string]config.ColumnRule{"1": {Type: "int"}}

	it, err := Open(context.Background(), NewRequest(loc, cfg), f.opts()...)
	require.NoError(t, err)
	defer it.Close()
	assert.Nil(t, it.Header())

	require.True(t, it.Next())
	assert.Nil(t, it.Row().Map)
	assert.Nil(t, it.Row().StringMap)
	assert.Equal(t, []any{"Selma", int64(8)}, it.Row().List)
	assert.Equal(t, int64(0), it.Row().LineNo)
}

func TestIgnoreAndRename(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	cfg := config.NewLoadConfig()
	cfg.Ignore = []string{"age"}
	cfg.Mapping = map[string]config.ColumnRule{"name": {Name: "firstName"}}
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 3)
	assert.Equal(t, map[string]any{"firstName": "Selma"}, mapOf(rows[0]))
	assert.Equal(t, []string{"Selma"}, rows[0].Strings)
}

func TestAllColumnsIgnoredKeepsRequestedShapes(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	cfg := config.NewLoadConfig()
	cfg.Ignore = []string{"name", "age"}
	cfg.Results = []string{"list", "map"}
	rows := f.collect(loc, cfg)

	require.Len(t, rows, 3)
	data, err := rows[0].MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"lineNo":0,"map":{},"list":[]}`, string(data))
}

func TestBangInPlainPath(t *testing.T) {
	f := newFixture(t)
	loc := f.write("x!y.csv", []byte(peopleCSV))

	rows := f.collect(loc, nil)
	require.Len(t, rows, 3)
}

func TestEmptyHeaderNameIsKeyed(t *testing.T) {
	f := newFixture(t)
	loc := f.write("blank.csv", []byte("a,,c\n1,2,3\n"))

	rows := f.collect(loc, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"a": "1", "": "2", "c": "3"}, mapOf(rows[0]))
	assert.Equal(t, []string{"a", "", "c"}, rows[0].StringMap.Keys())
}

func TestExplicitEncoding(t *testing.T) {
	f := newFixture(t)
	loc := f.write("latin1.csv", []byte("name\nJos\xe9\n"))

	cfg := config.NewLoadConfig()
	cfg.Encoding = "ISO-8859-1"
	rows := f.collect(loc, cfg)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"José"}, rows[0].Strings)

	cfg.Encoding = "klingon"
	_, err := Open(context.Background(), NewRequest(loc, cfg), f.opts()...)
	assert.True(t, errors.IsConfiguration(err))
}

func TestFileAccessDisabledByDefault(t *testing.T) {
	f := newFixture(t)
	loc := f.write("people.csv", []byte(peopleCSV))

	_, err := Open(context.Background(), NewRequest(filepath.Join(f.dir, loc), nil), WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), resource.FileDisabledMessage)
}

func TestHTTPWithCharsetAndCompressedTar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/latin1.csv":
			w.Header().Set("Content-Type", "text/csv; charset=ISO-8859-1")
			_, _ = w.Write([]byte("name\nJos\xe9\n"))
		case "/people.csv.gz":
			_, _ = w.Write(gzipBytes(t, []byte(peopleCSV)))
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	f := newFixture(t)
	rows := f.collect(srv.URL+"/latin1.csv", nil)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"José"}, rows[0].Strings)

	rows = f.collect(srv.URL+"/people.csv.gz", nil)
	require.Len(t, rows, 3)

	_, err := Open(context.Background(), NewRequest(srv.URL+"/missing.csv", nil), f.opts()...)
	assert.True(t, errors.IsResource(err))
}

func TestRedirectToLocalFileFails(t *testing.T) {
	f := newFixture(t)
	f.write("secret.csv", []byte("secret\nvalue\n"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Location", "file://"+filepath.Join(f.dir, "secret.csv"))
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	it, err := Open(context.Background(), NewRequest(srv.URL+"/data.csv", nil), f.opts()...)
	require.Error(t, err)
	assert.Nil(t, it)
	assert.True(t, errors.IsSecurityViolation(err))
	assert.Contains(t, err.Error(), "The redirect URI has a different protocol")
}

// trackingFetcher serves fixed content and records whether it was closed
type trackingFetcher struct {
	data    string
	fetched atomic.Int32
	closed  atomic.Int32
}

type trackingBody struct {
	io.Reader
	f *trackingFetcher
}

func (b *trackingBody) Close() error {
	b.f.closed.Add(1)
	return nil
}

func (f *trackingFetcher) Class() resource.Class { return resource.ClassNetwork }

func (f *trackingFetcher) Fetch(_ context.Context, loc *resource.Location, _ map[string]string) (*resource.Resource, error) {
	f.fetched.Add(1)
	body := &trackingBody{Reader: strings.NewReader(f.data), f: f}
	return resource.NewResource(body, loc.URL.Path, "text/csv", int64(len(f.data))), nil
}

func newTrackingResolver(t *testing.T, data string) (*resource.Resolver, *trackingFetcher) {
	t.Helper()
	r := resource.NewResolver(resource.Policy{NetworkEnabled: true}, config.NewConfig(), zap.NewNop())
	t.Cleanup(func() { _ = r.Close() })
	tf := &trackingFetcher{data: data}
	require.NoError(t, r.Register("mem", tf))
	return r, tf
}

func TestBreakReleasesResources(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)

	it, err := Open(context.Background(), NewRequest("mem://host/people.csv", nil), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	seen := 0
	for row, err := range it.All() {
		require.NoError(t, err)
		require.NotNil(t, row)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, int32(1), tf.closed.Load())
	assert.False(t, it.Next())
	assert.NoError(t, it.Close())
	assert.Equal(t, int32(1), tf.closed.Load())
}

func TestZeroLimitYieldsNothing(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)

	cfg := config.NewLoadConfig()
	cfg.SetLimit(0)
	it, err := Open(context.Background(), NewRequest("mem://host/people.csv", cfg), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Equal(t, int32(1), tf.closed.Load())
	assert.Equal(t, int64(0), it.Stats().RowsRead)
}

func TestLimitReleasesEagerly(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)

	cfg := config.NewLoadConfig()
	cfg.SetLimit(2)
	it, err := Open(context.Background(), NewRequest("mem://host/people.csv", cfg), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	require.True(t, it.Next())
	assert.Equal(t, int32(0), tf.closed.Load())
	require.True(t, it.Next())
	assert.Equal(t, int32(1), tf.closed.Load())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())

	stats := it.Stats()
	assert.Equal(t, int64(2), stats.Emitted)
	assert.Equal(t, int64(2), stats.RowsRead)
}

func TestInvalidRequestNeverFetches(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)

	bad := []func(*config.LoadConfig){
		func(c *config.LoadConfig) { c.Results = []string{"rows"} },
		func(c *config.LoadConfig) { c.Separator = "::" },
		func(c *config.LoadConfig) { c.Skip = -1 },
		func(c *config.LoadConfig) { c.Encoding = "nope" },
	}
	for _, mutate := range bad {
		cfg := config.NewLoadConfig()
		mutate(cfg)
		_, err := Open(context.Background(), NewRequest("mem://host/people.csv", cfg), WithResolver(r), WithLogger(zap.NewNop()))
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.True(t, errors.IsConfiguration(Validate(NewRequest("x.csv", cfg))))
	}
	assert.Equal(t, int32(0), tf.fetched.Load())
}

func TestTypeErrorReleasesOnOpen(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)

	cfg := config.NewLoadConfig()
	cfg.Mapping = map[string]config.ColumnRule{"age": {Type: "date"}}
	_, err := Open(context.Background(), NewRequest("mem://host/people.csv", cfg), WithResolver(r), WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Equal(t, int32(1), tf.closed.Load())

	err = Validate(NewRequest("people.csv", cfg))
	assert.True(t, errors.IsConfiguration(err))
	assert.ErrorContains(t, err, "invalid mapping for column age")
	assert.NoError(t, Validate(NewRequest("people.csv", config.NewLoadConfig())))
}

func TestOpenFailureReturnsErrorAndReleases(t *testing.T) {
	zipped := string(zipBytes(t, map[string]string{"people.csv": peopleCSV}, []string{"people.csv"}))
	before := promtest.ToFloat64(metrics.ActiveLoads)

	tests := []struct {
		name     string
		data     string
		location string
		cfg      func(*config.LoadConfig)
		check    func(error) bool
	}{
		{"missing entry", zipped, "mem://host/people.zip!other.csv", nil, errors.IsEntryNotFound},
		{"bad header type", peopleCSV, "mem://host/people.csv", func(c *config.LoadConfig) {
			c.Mapping = map[string]config.ColumnRule{"name": {Type: "timestamp"}}
		}, errors.IsConfiguration},
		{"unterminated header", "\"name,age\n", "mem://host/people.csv", nil, errors.IsResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, tf := newTrackingResolver(t, tt.data)
			cfg := config.NewLoadConfig()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}

			var (
				it  *Iterator
				err error
			)
			require.NotPanics(t, func() {
				it, err = Open(context.Background(), NewRequest(tt.location, cfg), WithResolver(r), WithLogger(zap.NewNop()))
			})
			require.Error(t, err)
			assert.Nil(t, it)
			assert.True(t, tt.check(err), err.Error())
			assert.Equal(t, int32(1), tf.closed.Load())
		})
	}
	assert.Equal(t, before, promtest.ToFloat64(metrics.ActiveLoads))
}

func TestRequestIsCopied(t *testing.T) {
	r, _ := newTrackingResolver(t, peopleCSV)

	cfg := config.NewLoadConfig()
	cfg.SetLimit(1)
	it, err := Open(context.Background(), NewRequest("mem://host/people.csv", cfg), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer it.Close()

	*cfg.Limit = 3
	n := 0
	for it.Next() {
		n++
	}
	assert.Equal(t, 1, n)
	assert.NotEmpty(t, it.RequestID())
}

func TestLoadStopsOnCallbackError(t *testing.T) {
	r, tf := newTrackingResolver(t, peopleCSV)
	stop := fmt.Errorf("stop")

	var names []string
	stats, err := Load(context.Background(), NewRequest("mem://host/people.csv", nil), func(row *models.Row) error {
		v, _ := row.Map.Get("name")
		names = append(names, v.(string))
		if len(names) == 2 {
			return stop
		}
		return nil
	}, WithResolver(r), WithLogger(zap.NewNop()))

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"Selma", "Rana"}, names)
	assert.Equal(t, int64(2), stats.Emitted)
	assert.Equal(t, int32(1), tf.closed.Load())
}

func TestLoadStats(t *testing.T) {
	r, _ := newTrackingResolver(t, peopleCSV)

	cfg := config.NewLoadConfig()
	cfg.Skip = 1
	stats, err := Load(context.Background(), NewRequest("mem://host/people.csv", cfg), func(*models.Row) error { return nil },
		WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, Stats{RowsRead: 3, Skipped: 1, Emitted: 2, BytesRead: int64(len(peopleCSV))}, stats)
}

func TestCanceledContextStops(t *testing.T) {
	r, _ := newTrackingResolver(t, peopleCSV)
	ctx, cancel := context.WithCancel(context.Background())

	it, err := Open(ctx, NewRequest("mem://host/people.csv", nil), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.True(t, it.Next())
	cancel()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestUnterminatedQuoteIsDataError(t *testing.T) {
	r, _ := newTrackingResolver(t, "name\nok\n\"broken\n")

	it, err := Open(context.Background(), NewRequest("mem://host/broken.csv", nil), WithResolver(r), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.True(t, it.Next())
	assert.False(t, it.Next())
	assert.True(t, errors.IsResource(it.Err()))
	assert.True(t, errors.IsType(it.Err(), errors.ErrorTypeData))
}
