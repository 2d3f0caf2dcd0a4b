package fileio

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Build serializes rows in opts.Format.
func Build(rows []Record, opts Options) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	switch opts.Format {
	case FormatCSV, FormatTSV:
		return buildDelimited(rows, opts)
	case FormatJSON:
		return buildJSON(rows, opts)
	case FormatNDJSON:
		return buildNDJSON(rows)
	case FormatXML:
		return buildXML(rows, opts)
	case FormatXLSX:
		return buildXLSX(rows, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}

// WriteFile builds rows and writes them to path, creating parent directories.
func WriteFile(path string, rows []Record, opts Options) error {
	if opts.Format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return err
		}
		opts.Format = f
	}
	data, err := Build(rows, opts)
	if err != nil {
		return err
	}
	return WriteBytes(path, data)
}

// WriteBytes writes a built document to path, creating parent directories.
func WriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Columns returns opts.Columns, or the sorted union of keys across rows.
func Columns(rows []Record, opts Options) []string {
	if len(opts.Columns) > 0 {
		return opts.Columns
	}
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// textValue renders a cell for text formats. Maps are written as JSON.
func textValue(v any) string {
	if m, ok := v.(map[string]any); ok {
		data, err := json.Marshal(m)
		if err == nil {
			return string(data)
		}
	}
	return convert.ToString(v)
}

func buildDelimited(rows []Record, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = opts.delimiter()

	cols := Columns(rows, opts)
	if err := w.Write(cols); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	line := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			line[i] = textValue(row[col])
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

func buildJSON(rows []Record, opts Options) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if opts.Compact {
		data, err = json.Marshal(rows)
	} else {
		data, err = json.MarshalIndent(rows, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

func buildNDJSON(rows []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// xmlName makes s usable as an element name.
func xmlName(s string) string {
	var b strings.Builder
	for i, r := range s {
		valid := unicode.IsLetter(r) || r == '_' || (i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if !valid {
			if i == 0 && unicode.IsDigit(r) {
				b.WriteRune('_')
				b.WriteRune(r)
				continue
			}
			r = '_'
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func buildXML(rows []Record, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: xmlName(opts.rootTag())}}
	rowStart := xml.StartElement{Name: xml.Name{Local: xmlName(opts.rowTag())}}
	cols := Columns(rows, opts)

	if err := enc.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	for _, row := range rows {
		if err := enc.EncodeToken(rowStart); err != nil {
			return nil, fmt.Errorf("encode xml: %w", err)
		}
		for _, col := range cols {
			el := xml.StartElement{Name: xml.Name{Local: xmlName(col)}}
			if err := enc.EncodeElement(textValue(row[col]), el); err != nil {
				return nil, fmt.Errorf("encode xml field %q: %w", col, err)
			}
		}
		if err := enc.EncodeToken(rowStart.End()); err != nil {
			return nil, fmt.Errorf("encode xml: %w", err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
