// Package tokenizer splits a character stream into delimited rows.
//
// The reader is quote-aware: a quoted field may contain the separator, line
// breaks and doubled quotes, and text following a closing quote is kept
// literally up to the next separator. Completely empty physical lines are
// skipped. Both \n and \r\n end a row.
//
//	tr := tokenizer.New(r, tokenizer.DefaultOptions())
//	for {
//	    row, err := tr.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package tokenizer

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
	"github.com/ajitpratap0/csvload/pkg/models"
)

// NoQuote disables quote handling when used as Options.Quote
const NoQuote rune = 0

// Options configure a Reader
type Options struct {
	// Separator splits fields; zero means ','
	Separator rune
	// Quote delimits quoted fields; NoQuote disables quoting
	Quote rune
	// Header consumes the first row as column names
	Header bool
}

// DefaultOptions returns comma separated, double-quoted input with a header
func DefaultOptions() Options {
	return Options{Separator: ',', Quote: '"', Header: true}
}

var separatorAliases = map[string]rune{
	"TAB":       '\t',
	"COMMA":     ',',
	"SEMICOLON": ';',
	"PIPE":      '|',
	"SPACE":     ' ',
}

// ParseSeparator resolves a single character or a named alias such as TAB.
func ParseSeparator(s string) (rune, error) {
	if s == "" {
		return ',', nil
	}
	if r, ok := separatorAliases[strings.ToUpper(s)]; ok {
		return r, nil
	}
	if r, n := utf8.DecodeRuneInString(s); n == len(s) && r != utf8.RuneError {
		return r, nil
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "separator must be a single character or one of TAB, COMMA, SEMICOLON, PIPE, SPACE: %q", s)
}

// ParseQuote resolves the quote character. "\u0000" and NONE disable
// quoting; an empty value keeps the default double quote.
func ParseQuote(s string) (rune, error) {
	switch {
	case s == "":
		return '"', nil
	case s == "\u0000", strings.EqualFold(s, "NONE"):
		return NoQuote, nil
	}
	if r, n := utf8.DecodeRuneInString(s); n == len(s) && r != utf8.RuneError {
		return r, nil
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "quote character must be a single character: %q", s)
}

// OptionsFrom derives tokenizer options from load options.
func OptionsFrom(cfg *config.LoadConfig) (Options, error) {
	sep, err := ParseSeparator(cfg.Separator)
	if err != nil {
		return Options{}, err
	}
	quote, err := ParseQuote(cfg.QuoteChar)
	if err != nil {
		return Options{}, err
	}
	if sep == quote {
		return Options{}, errors.Newf(errors.ErrorTypeConfig, "separator and quote character are both %q", string(sep))
	}
	if sep == '\n' || sep == '\r' || quote == '\n' || quote == '\r' {
		return Options{}, errors.New(errors.ErrorTypeConfig, "separator and quote character cannot be line breaks")
	}
	return Options{Separator: sep, Quote: quote, Header: cfg.Header}, nil
}

// Reader produces RawRows from a character stream. It is not safe for
// concurrent use and cannot be restarted.
type Reader struct {
	r    *bufio.Reader
	opts Options

	header     []string
	headerRead bool
	// keepEmpty reads an empty line as one empty field; set for
	// single-column headers, where such a line is a real row
	keepEmpty bool
	lineNo    int64
	// line is the 1-based physical line the reader is positioned on
	line int
	err  error

	field strings.Builder
}

// New creates a Reader over r.
func New(r io.Reader, opts Options) *Reader {
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	return &Reader{
		r:    bufio.NewReaderSize(r, 64*1024),
		opts: opts,
		line: 1,
	}
}

// Header returns the column names, reading the first row if needed. It
// returns nil when header mode is off or the stream is empty.
func (t *Reader) Header() ([]string, error) {
	if !t.opts.Header {
		return nil, nil
	}
	if !t.headerRead {
		t.headerRead = true
		fields, err := t.readRecord()
		if err != nil && err != io.EOF {
			t.err = err
			return nil, err
		}
		t.header = fields
		t.keepEmpty = len(fields) == 1
	}
	return t.header, nil
}

// Next returns the next data row, or io.EOF when the stream is exhausted.
// After an error every later call returns the same error.
func (t *Reader) Next() (models.RawRow, error) {
	if t.err != nil {
		return models.RawRow{}, t.err
	}
	header, err := t.Header()
	if err != nil {
		return models.RawRow{}, err
	}
	fields, err := t.readRecord()
	if err != nil {
		t.err = err
		return models.RawRow{}, err
	}
	row := models.RawRow{LineNo: t.lineNo, Fields: fields, Header: header}
	t.lineNo++
	return row, nil
}

// Line returns the physical line the reader is positioned on.
func (t *Reader) Line() int {
	return t.line
}

// readRecord reads one logical row. Empty physical lines are skipped
// unless keepEmpty is set.
func (t *Reader) readRecord() ([]string, error) {
	if t.keepEmpty {
		if _, err := t.r.Peek(1); err == io.EOF {
			return nil, io.EOF
		}
	} else if err := t.skipEmptyLines(); err != nil {
		return nil, err
	}

	var (
		fields     []string
		inQuotes   bool
		fieldStart = true
		startLine  = t.line
	)
	t.field.Reset()

	for {
		r, _, err := t.r.ReadRune()
		if err == io.EOF {
			if inQuotes {
				return nil, errors.Newf(errors.ErrorTypeData, "unterminated quoted field starting on line %d", startLine).
					WithDetail("line", startLine)
			}
			return append(fields, t.field.String()), nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeResource, "failed to read delimited input").
				WithDetail("line", t.line)
		}

		if inQuotes {
			switch r {
			case t.opts.Quote:
				next, _, err := t.r.ReadRune()
				if err == nil && next == t.opts.Quote {
					t.field.WriteRune(t.opts.Quote)
					continue
				}
				if err == nil {
					_ = t.r.UnreadRune()
				}
				inQuotes = false
			case '\n':
				t.line++
				t.field.WriteRune(r)
			default:
				t.field.WriteRune(r)
			}
			continue
		}

		switch {
		case r == t.opts.Separator:
			fields = append(fields, t.field.String())
			t.field.Reset()
			fieldStart = true
			continue
		case r == '\n':
			t.line++
			return append(fields, t.field.String()), nil
		case r == '\r' && t.peekNewline():
			_, _, _ = t.r.ReadRune()
			t.line++
			return append(fields, t.field.String()), nil
		case r == t.opts.Quote && t.opts.Quote != NoQuote && fieldStart:
			inQuotes = true
		default:
			t.field.WriteRune(r)
		}
		fieldStart = false
	}
}

// skipEmptyLines consumes blank physical lines and reports io.EOF at the end
// of input.
func (t *Reader) skipEmptyLines() error {
	for {
		b, err := t.r.Peek(1)
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return errors.Wrap(err, errors.ErrorTypeResource, "failed to read delimited input").
				WithDetail("line", t.line)
		}
		switch b[0] {
		case '\n':
			_, _ = t.r.Discard(1)
			t.line++
		case '\r':
			two, _ := t.r.Peek(2)
			if len(two) < 2 || two[1] != '\n' {
				return nil
			}
			_, _ = t.r.Discard(2)
			t.line++
		default:
			return nil
		}
	}
}

func (t *Reader) peekNewline() bool {
	b, err := t.r.Peek(1)
	return err == nil && b[0] == '\n'
}
