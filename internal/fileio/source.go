package fileio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Source yields rows from re-openable input. Every call to Rows starts
// from the beginning of the input.
type Source struct {
	open func(ctx context.Context) (io.ReadCloser, error)
	opts Options
	name string
}

// FileSource reads rows from a file. An empty opts.Format is derived from
// the file extension.
func FileSource(path string, opts Options) (*Source, error) {
	if opts.Format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	return &Source{
		open: func(context.Context) (io.ReadCloser, error) { return os.Open(path) },
		opts: opts,
		name: path,
	}, nil
}

// BytesSource reads rows from an in-memory document.
func BytesSource(data []byte, opts Options) *Source {
	return &Source{
		open: func(context.Context) (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		opts: opts,
		name: "<memory>",
	}
}

// Named returns a copy of s reported under name, such as an upload's
// original file name.
func (s *Source) Named(name string) *Source {
	c := *s
	c.name = name
	return &c
}

// Format returns the source format.
func (s *Source) Format() Format { return s.opts.Format }

// Name identifies the source in errors and logs.
func (s *Source) Name() string { return s.name }

// Rows returns a lazy sequence of records in input order. Iteration stops
// at the first error, which is yielded with a nil record.
func (s *Source) Rows(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rc, err := s.open(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("open %s: %w", s.name, err))
			return
		}
		defer rc.Close()

		emit := func(rec Record, err error) bool {
			if err == nil {
				if cerr := ctx.Err(); cerr != nil {
					yield(nil, cerr)
					return false
				}
			}
			return yield(rec, err)
		}

		switch s.opts.Format {
		case FormatCSV, FormatTSV:
			decodeDelimited(normalizeInput(rc), s.opts, emit)
		case FormatJSON:
			decodeJSON(normalizeInput(rc), s.opts, emit)
		case FormatNDJSON:
			decodeNDJSON(normalizeInput(rc), s.opts, emit)
		case FormatXML:
			decodeXML(normalizeInput(rc), s.opts, emit)
		case FormatXLSX:
			decodeXLSX(rc, s.opts, emit)
		default:
			yield(nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s.opts.Format))
		}
	}
}

// ReadAll collects every row of s.
func ReadAll(ctx context.Context, s *Source) ([]Record, error) {
	var rows []Record
	for rec, err := range s.Rows(ctx) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// Parse reads every row of an in-memory document.
func Parse(data []byte, opts Options) ([]Record, error) {
	return ReadAll(context.Background(), BytesSource(data, opts))
}

type emitFunc func(Record, error) bool

func cell(s string, opts Options) any {
	if s == "" && !opts.KeepEmpty {
		return nil
	}
	return s
}

// headerNames cleans header cells. Blank names become column_<n> and
// repeated names get a numeric suffix.
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := convert.CleanCell(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}

func decodeDelimited(r io.Reader, opts Options, emit emitFunc) {
	cr := csv.NewReader(r)
	cr.Comma = opts.delimiter()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var header []string
	for line := 0; header == nil; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			emit(nil, fmt.Errorf("read header: %w", err))
			return
		}
		if line == opts.HeaderRow {
			header = headerNames(rec)
		}
	}

	for skipped := 0; ; {
		rec, err := cr.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			emit(nil, fmt.Errorf("read row: %w", err))
			return
		}
		if skipped < opts.SkipRows {
			skipped++
			continue
		}

		row := make(Record, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = cell(rec[i], opts)
			} else {
				row[name] = nil
			}
		}
		if !emit(row, nil) {
			return
		}
	}
}

// numberValue mirrors the accessors of json.Number.
type numberValue interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// normalizeJSON turns decoded numbers into int64 or float64 and applies
// the empty string policy to nested values.
func normalizeJSON(v any, opts Options) any {
	switch t := v.(type) {
	case numberValue:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string:
		return cell(t, opts)
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item, opts)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeJSON(item, opts)
		}
		return t
	default:
		return v
	}
}

// jsonRows finds the records of a document: a top-level array, the first
// array of objects inside a top-level object, or the object itself.
func jsonRows(doc any) ([]any, error) {
	switch t := doc.(type) {
	case []any:
		return t, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := t[k].([]any); ok && len(list) > 0 {
				if _, isObj := list[0].(map[string]any); isObj {
					return list, nil
				}
			}
		}
		return []any{t}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("json document must be an array or object, got %T", doc)
	}
}

func decodeJSON(r io.Reader, opts Options, emit emitFunc) {
	data, err := io.ReadAll(r)
	if err != nil {
		emit(nil, fmt.Errorf("read json: %w", err))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		emit(nil, fmt.Errorf("decode json: %w", err))
		return
	}

	items, err := jsonRows(doc)
	if err != nil {
		emit(nil, err)
		return
	}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			emit(nil, fmt.Errorf("json row %d: expected object, got %T", i, item))
			return
		}
		if !emit(normalizeJSON(obj, opts).(map[string]any), nil) {
			return
		}
	}
}

func decodeNDJSON(r io.Reader, opts Options, emit emitFunc) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()

		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			emit(nil, fmt.Errorf("ndjson line %d: %w", line, err))
			return
		}
		if !emit(normalizeJSON(obj, opts).(map[string]any), nil) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		emit(nil, fmt.Errorf("read ndjson: %w", err))
	}
}

// decodeXML treats each child of the root element as a row, or with an
// explicit RowTag every element of that name. Child elements become fields
// and row attributes become fields too.
func decodeXML(r io.Reader, opts Options, emit emitFunc) {
	dec := xml.NewDecoder(r)

	var (
		depth    int
		rowDepth = -1
		row      Record
		field    string
		text     strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			emit(nil, fmt.Errorf("decode xml: %w", err))
			return
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			isRow := (opts.RowTag == "" && depth == 2) || (opts.RowTag != "" && t.Name.Local == opts.RowTag)
			switch {
			case row == nil && isRow:
				row = make(Record)
				rowDepth = depth
				for _, a := range t.Attr {
					row[a.Name.Local] = cell(a.Value, opts)
				}
			case row != nil && depth == rowDepth+1:
				field = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			switch {
			case row != nil && field != "" && depth == rowDepth+1:
				row[field] = cell(strings.TrimSpace(text.String()), opts)
				field = ""
			case row != nil && depth == rowDepth:
				if !emit(row, nil) {
					return
				}
				row, rowDepth = nil, -1
			}
			depth--
		}
	}
}
