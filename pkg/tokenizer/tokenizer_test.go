package tokenizer

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/testutil"
)

func readAll(t *testing.T, input string, opts Options) ([]string, [][]string) {
	t.Helper()
	tr := New(strings.NewReader(input), opts)
	header, err := tr.Header()
	require.NoError(t, err)

	var rows [][]string
	var want int64
	for {
		row, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, want, row.LineNo)
		want++
		rows = append(rows, row.Fields)
	}
	return header, rows
}

func TestHeaderAndRows(t *testing.T) {
	header, rows := readAll(t, "name,age\nSelma,8\nRana,11\nSelina,18\n", DefaultOptions())
	assert.Equal(t, []string{"name", "age"}, header)
	assert.Equal(t, [][]string{{"Selma", "8"}, {"Rana", "11"}, {"Selina", "18"}}, rows)
}

func TestNoHeader(t *testing.T) {
	opts := DefaultOptions()
	opts.Header = false
	header, rows := readAll(t, "a,b\nc,d", opts)
	assert.Nil(t, header)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestQuoting(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{"embedded separator", "h\n\"a,b\"\n", [][]string{{"a,b"}}},
		{"doubled quote", "h\n\"say \"\"hi\"\"\"\n", [][]string{{`say "hi"`}}},
		{"embedded newline", "h,x\n\"line1\nline2\",z\n", [][]string{{"line1\nline2", "z"}}},
		{"embedded crlf", "h\r\n\"a\r\nb\"\r\n", [][]string{{"a\r\nb"}}},
		{"text after closing quote", "h\n\"ab\"cd,e\n", [][]string{{"abcd", "e"}}},
		{"quote inside unquoted field", "h\nab\"c,d\n", [][]string{{`ab"c`, "d"}}},
		{"empty quoted field", "h\n\"\",x\n", [][]string{{"", "x"}}},
		{"quoted field at eof", "h\n\"a\"", [][]string{{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rows := readAll(t, tt.input, DefaultOptions())
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestLineEndingsAndEmptyLines(t *testing.T) {
	_, rows := readAll(t, "h1,h2\r\n\r\na,b\n\n\nc,\r\n,d", DefaultOptions())
	assert.Equal(t, [][]string{{"a", "b"}, {"c", ""}, {"", "d"}}, rows)
}

func TestEmptyLineInSingleColumnIsARow(t *testing.T) {
	header, rows := readAll(t, "\nname\nSelma\n\r\nRana\n\n", DefaultOptions())
	assert.Equal(t, []string{"name"}, header)
	assert.Equal(t, [][]string{{"Selma"}, {""}, {"Rana"}, {""}}, rows)

	_, rows = readAll(t, "name\nSelma\n", DefaultOptions())
	assert.Equal(t, [][]string{{"Selma"}}, rows)
}

func TestLoneCarriageReturnIsData(t *testing.T) {
	_, rows := readAll(t, "h\na\rb\n", DefaultOptions())
	assert.Equal(t, [][]string{{"a\rb"}}, rows)
}

func TestEmptyInput(t *testing.T) {
	header, rows := readAll(t, "", DefaultOptions())
	assert.Nil(t, header)
	assert.Empty(t, rows)

	header, rows = readAll(t, "\n\n", DefaultOptions())
	assert.Nil(t, header)
	assert.Empty(t, rows)
}

func TestQuotingDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Quote = NoQuote
	_, rows := readAll(t, "h,x\n\"a,b\"\n", opts)
	assert.Equal(t, [][]string{{`"a`, `b"`}}, rows)
}

func TestCustomSeparatorAndQuote(t *testing.T) {
	opts := Options{Separator: '\t', Quote: '\'', Header: true}
	header, rows := readAll(t, "a\tb\n'x\ty'\tz\n", opts)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Equal(t, [][]string{{"x\ty", "z"}}, rows)
}

func TestFieldCountNotEnforced(t *testing.T) {
	_, rows := readAll(t, "a,b,c\n1\n1,2,3,4\n", DefaultOptions())
	assert.Equal(t, [][]string{{"1"}, {"1", "2", "3", "4"}}, rows)
}

func TestHeaderSharedWithRows(t *testing.T) {
	tr := New(strings.NewReader("a,b\n1,2\n"), DefaultOptions())
	row, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, row.Header)
}

func TestUnterminatedQuote(t *testing.T) {
	tr := New(strings.NewReader("h\nok\n\"never closed\nmore\n"), DefaultOptions())
	_, err := tr.Next()
	require.NoError(t, err)

	_, err = tr.Next()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.True(t, errors.IsResource(err))
	assert.Contains(t, err.Error(), "line 3")

	_, again := tr.Next()
	assert.Equal(t, err, again)
}

func TestReadErrorIsResourceError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("h\na"), iotest.ErrReader(io.ErrClosedPipe))
	tr := New(r, DefaultOptions())
	_, err := tr.Next()
	require.Error(t, err)
	assert.True(t, errors.IsResource(err))
}

func TestParseSeparator(t *testing.T) {
	tests := map[string]rune{
		"":          ',',
		",":         ',',
		"TAB":       '\t',
		"tab":       '\t',
		"\t":        '\t',
		"semicolon": ';',
		"PIPE":      '|',
		"SPACE":     ' ',
		"COMMA":     ',',
		"§":         '§',
	}
	for in, want := range tests {
		got, err := ParseSeparator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSeparator("::")
	assert.True(t, errors.IsConfiguration(err))
}

func TestParseQuote(t *testing.T) {
	q, err := ParseQuote("")
	require.NoError(t, err)
	assert.Equal(t, '"', q)

	q, err = ParseQuote("\u0000")
	require.NoError(t, err)
	assert.Equal(t, NoQuote, q)

	q, err = ParseQuote("none")
	require.NoError(t, err)
	assert.Equal(t, NoQuote, q)

	q, err = ParseQuote("'")
	require.NoError(t, err)
	assert.Equal(t, '\'', q)

	_, err = ParseQuote("''")
	assert.True(t, errors.IsConfiguration(err))
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.NewLoadConfig()
	cfg.Separator = "TAB"
	cfg.Header = false
	opts, err := OptionsFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, Options{Separator: '\t', Quote: '"', Header: false}, opts)

	cfg.Separator = `"`
	_, err = OptionsFrom(cfg)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRoundTripThroughBuilder(t *testing.T) {
	values := [][]string{
		{"plain", "", "x"},
		{"with,comma", `with "quotes"`, "multi\nline"},
		{"ünïcødé", "  padded  ", "tab\there"},
		{`"`, ",", "\n"},
	}
	dialects := []Options{
		DefaultOptions(),
		{Separator: '\t', Quote: '"', Header: true},
		{Separator: ';', Quote: '\'', Header: true},
		{Separator: '|', Quote: '"', Header: true},
	}
	for _, opts := range dialects {
		cb := testutil.NewCSVBuilder(opts.Separator, opts.Quote).WriteRow("a", "b", "c")
		for _, row := range values {
			cb.WriteRow(row...)
		}

		header, rows := readAll(t, cb.String(), opts)
		assert.Equal(t, []string{"a", "b", "c"}, header)
		assert.Equal(t, values, rows, "separator %q", opts.Separator)
	}
}
