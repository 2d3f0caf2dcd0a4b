package fileio

import (
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"
)

// decodeXLSX reads one worksheet. Cells come back as their displayed text,
// and rows with no content are skipped.
func decodeXLSX(r io.Reader, opts Options, emit emitFunc) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		emit(nil, fmt.Errorf("open xlsx: %w", err))
		return
	}
	defer f.Close()

	sheet := opts.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	} else if !slices.Contains(f.GetSheetList(), sheet) {
		emit(nil, fmt.Errorf("xlsx sheet %q not found, have %v", sheet, f.GetSheetList()))
		return
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		emit(nil, fmt.Errorf("read sheet %q: %w", sheet, err))
		return
	}
	defer rows.Close()

	var header []string
	skipped := 0
	for line := 0; rows.Next(); line++ {
		cols, err := rows.Columns()
		if err != nil {
			emit(nil, fmt.Errorf("read sheet %q row %d: %w", sheet, line+1, err))
			return
		}
		if header == nil {
			if line == opts.HeaderRow {
				header = headerNames(cols)
			}
			continue
		}
		if blankRow(cols) {
			continue
		}
		if skipped < opts.SkipRows {
			skipped++
			continue
		}

		row := make(Record, len(header))
		for i, name := range header {
			if i < len(cols) {
				row[name] = cell(cols[i], opts)
			} else {
				row[name] = nil
			}
		}
		if !emit(row, nil) {
			return
		}
	}
	if err := rows.Error(); err != nil {
		emit(nil, fmt.Errorf("read sheet %q: %w", sheet, err))
	}
}

func blankRow(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}

// sheetValue keeps numbers and booleans typed so spreadsheets can sum them.
func sheetValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return v
	default:
		return textValue(v)
	}
}

func buildXLSX(rows []Record, opts Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := opts.sheetName()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	cols := Columns(rows, opts)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	line := make([]any, len(cols))
	for i, row := range rows {
		for j, col := range cols {
			line[j] = sheetValue(row[col])
		}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheet, cellName, &line); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
