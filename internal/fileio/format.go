// Package fileio reads row records from CSV, TSV, JSON, NDJSON, XML and
// XLSX input, local or fetched over HTTP, and builds files in the same
// formats from rows.
package fileio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Record is one row: field name to value.
type Record = map[string]any

// Format identifies a file format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatTSV    Format = "tsv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatXML    Format = "xml"
	FormatXLSX   Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoData            = errors.New("no data to export")
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatTSV, FormatJSON, FormatNDJSON, FormatXML, FormatXLSX}
}

// ParseFormat maps a name or extension such as "CSV" or ".jsonl" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "csv":
		return FormatCSV, nil
	case "tsv", "tab", "txt":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	case "ndjson", "jsonl":
		return FormatNDJSON, nil
	case "xml":
		return FormatXML, nil
	case "xlsx", "xlsm", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string { return string(f) }

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatXML:
		return "application/xml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Options controls parsing and building.
type Options struct {
	Format Format

	// Delimiter overrides the field separator for csv and tsv.
	Delimiter rune

	// HeaderRow is the zero-based line holding column names (csv, tsv, xlsx).
	HeaderRow int

	// SkipRows drops this many data rows after the header.
	SkipRows int

	// KeepEmpty keeps empty cells as "" instead of nil.
	KeepEmpty bool

	// RootTag and RowTag name the xml elements. Defaults: products, product.
	RootTag string
	RowTag  string

	// SheetName selects the xlsx worksheet to read or names the one built.
	// Reading defaults to the active sheet, building to "Products".
	SheetName string

	// Columns fixes the column order when building. Defaults to the sorted
	// union of row keys.
	Columns []string

	// Compact disables json indentation.
	Compact bool
}

func (o Options) delimiter() rune {
	if o.Delimiter != 0 {
		return o.Delimiter
	}
	if o.Format == FormatTSV {
		return '\t'
	}
	return ','
}

func (o Options) rootTag() string {
	if o.RootTag != "" {
		return o.RootTag
	}
	return "products"
}

func (o Options) rowTag() string {
	if o.RowTag != "" {
		return o.RowTag
	}
	return "product"
}

func (o Options) sheetName() string {
	if o.SheetName != "" {
		return o.SheetName
	}
	return "Products"
}
