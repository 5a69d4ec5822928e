package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format identifies the container of a tabular source.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sniffSize = 64 * 1024

var (
	zipMagic        = []byte("PK\x03\x04")
	candidateDelims = []rune{',', ';', '\t', '|'}
)

// Row is one data record. Number is the 1-based data row position, the
// header excluded.
//
// A Malformed CSV row has its fields recovered by a lenient split and keeps
// the record's original text, terminator excluded, in Raw.
type Row struct {
	Number    int
	Fields    []string
	Malformed bool
	Raw       []byte
}

// RowSource is a single-pass sequence of rows with a header.
type RowSource interface {
	Header() ([]string, error)
	Next() (Row, error)
}

type options struct {
	delimiter rune
	sheet     string
}

// Option configures a Reader.
type Option func(*options)

// WithDelimiter fixes the field delimiter instead of sniffing it.
func WithDelimiter(d rune) Option {
	return func(o *options) { o.delimiter = d }
}

// WithSheet selects the worksheet for XLSX input. Defaults to the first sheet.
func WithSheet(name string) Option {
	return func(o *options) { o.sheet = name }
}

type record struct {
	fields    []string
	raw       []byte
	malformed bool
}

// records is the format-specific record iterator behind a Reader.
type records interface {
	read() (record, error)
	close() error
}

// Reader streams rows from a CSV or XLSX source. It is consumed once.
type Reader struct {
	src       records
	format    Format
	delimiter rune
	header    []string
	headerErr error
	started   bool
	rows      int
	malformed int
}

// NewReader sniffs r and returns a reader over its rows.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReaderSize(r, sniffSize)
	magic, _ := br.Peek(len(zipMagic))
	if bytes.Equal(magic, zipMagic) {
		src, err := openXLSX(br, o.sheet)
		if err != nil {
			return nil, &InputFormatError{Err: err}
		}
		return &Reader{src: src, format: FormatXLSX}, nil
	}

	// BOMOverride strips a UTF-8 BOM and decodes BOM-marked UTF-16.
	tap := &rawTap{r: transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder()))}
	decoded := bufio.NewReaderSize(tap, sniffSize)
	delim := o.delimiter
	if delim == 0 {
		head, _ := decoded.Peek(sniffSize)
		delim = sniffDelimiter(head)
	}

	cr := csv.NewReader(decoded)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return &Reader{src: &csvRecords{r: cr, tap: tap}, format: FormatCSV, delimiter: delim}, nil
}

// Format reports the detected container format.
func (r *Reader) Format() Format { return r.format }

// Delimiter reports the CSV field delimiter in use, or 0 for XLSX input.
func (r *Reader) Delimiter() rune { return r.delimiter }

// Header returns the first record. A source with no records yields ErrEmptyFile.
func (r *Reader) Header() ([]string, error) {
	if r.started {
		return r.header, r.headerErr
	}
	r.started = true
	rec, err := r.src.read()
	switch {
	case errors.Is(err, io.EOF):
		r.headerErr = ErrEmptyFile
	case err != nil:
		r.headerErr = err
	default:
		r.header = rec.fields
	}
	return r.header, r.headerErr
}

// Next returns the next data row or io.EOF.
func (r *Reader) Next() (Row, error) {
	if _, err := r.Header(); err != nil {
		return Row{}, err
	}
	rec, err := r.src.read()
	if err != nil {
		return Row{}, err
	}
	r.rows++
	if rec.malformed {
		r.malformed++
	}
	return Row{Number: r.rows, Fields: rec.fields, Malformed: rec.malformed, Raw: rec.raw}, nil
}

// Malformed returns the number of rows absorbed with quoting errors so far.
func (r *Reader) Malformed() int { return r.malformed }

// Close releases format resources.
func (r *Reader) Close() error { return r.src.close() }

// rawTap records the decoded bytes the CSV parser has not consumed yet so a
// malformed record can be recovered from its original text. It holds at
// most the parser's read-ahead plus the current record.
type rawTap struct {
	r    io.Reader
	buf  []byte
	base int64 // stream offset of buf[0]
}

func (t *rawTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// take returns a copy of stream bytes [from, to) when keep is set and
// forgets everything before to.
func (t *rawTap) take(from, to int64, keep bool) []byte {
	lo := min(max(from-t.base, 0), int64(len(t.buf)))
	hi := min(max(to-t.base, lo), int64(len(t.buf)))
	var raw []byte
	if keep {
		raw = append([]byte(nil), t.buf[lo:hi]...)
	}
	t.buf = t.buf[hi:]
	t.base += hi
	return raw
}

type csvRecords struct {
	r      *csv.Reader
	tap    *rawTap
	offset int64
}

func (c *csvRecords) read() (record, error) {
	start := c.offset
	fields, err := c.r.Read()
	end := c.r.InputOffset()
	c.offset = end

	if err == nil {
		c.tap.take(start, end, false)
		return record{fields: fields}, nil
	}
	if errors.Is(err, io.EOF) {
		return record{}, io.EOF
	}
	var pe *csv.ParseError
	if !errors.As(err, &pe) {
		return record{}, &InputFormatError{Err: err}
	}

	raw := recordText(c.tap.take(start, end, true))
	recovered, open := splitLenient(string(raw), c.r.Comma)
	if open {
		// The parser only keeps reading inside a quote, so a quote still
		// open here swallowed the rest of the stream.
		return record{}, &InputFormatError{Line: pe.StartLine, Err: pe.Err}
	}
	return record{fields: recovered, raw: raw, malformed: true}, nil
}

func (c *csvRecords) close() error { return nil }

// recordText drops the blank lines the parser skipped before a record and
// one trailing LF or CRLF.
func recordText(raw []byte) []byte {
	raw = bytes.TrimLeft(raw, "\r\n")
	raw = bytes.TrimSuffix(raw, []byte("\n"))
	return bytes.TrimSuffix(raw, []byte("\r"))
}

// splitLenient splits one record the way a reader would see it by eye: a
// quote opens a field only at its start, a lone quote closes it and any
// stray text after the close stays in the field. open reports a quoted
// field that never closed.
func splitLenient(s string, comma rune) (fields []string, open bool) {
	var (
		field      strings.Builder
		inQuote    bool
		fieldStart = true
	)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case inQuote:
			switch {
			case r == '"' && strings.HasPrefix(s[i:], `"`):
				field.WriteByte('"')
				i++
			case r == '"':
				inQuote = false
			case r == '\r' && strings.HasPrefix(s[i:], "\n"):
			default:
				field.WriteRune(r)
			}
		case fieldStart && r == '"':
			inQuote = true
			fieldStart = false
		case r == comma:
			fields = append(fields, field.String())
			field.Reset()
			fieldStart = true
		default:
			fieldStart = false
			field.WriteRune(r)
		}
	}
	return append(fields, field.String()), inQuote
}

// sniffDelimiter picks the candidate delimiter occurring most often outside
// quotes on the first line. Comma wins ties.
func sniffDelimiter(head []byte) rune {
	counts := make(map[rune]int, len(candidateDelims))
	inQuote := false
	for _, b := range head {
		if b == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if b == '\n' || b == '\r' {
			break
		}
		for _, d := range candidateDelims {
			if rune(b) == d {
				counts[d]++
			}
		}
	}
	best := ','
	for _, d := range candidateDelims {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func (f Format) String() string { return string(f) }
