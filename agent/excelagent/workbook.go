// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package excelagent

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-json-experiment/json"
	"github.com/xuri/excelize/v2"
)

// MimeType is the media type of the generated workbooks.
const MimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Placeholder row written when a query returned nothing.
const (
	PlaceholderColumn = "No results"
	PlaceholderValue  = "No data returned from query"
)

const maxMetadataWidth = 100

// Request is the content of an export task.
type Request struct {
	Query    string
	SQLQuery string
	Result   []map[string]any
	// Columns fixes the column order. Keys of Result missing from it follow in
	// alphabetical order.
	Columns       []string
	FormatOptions FormatOptions
}

// columns returns the ordered column names of the data sheet.
func (r *Request) columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, c := range r.Columns {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	var extra []string
	for _, row := range r.Result {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)
	return append(cols, extra...)
}

// BuildWorkbook renders req as an xlsx workbook. now is written as the report time.
func BuildWorkbook(req *Request, now time.Time) ([]byte, error) {
	opts := req.FormatOptions
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rows := req.Result
	cols := req.columns()
	if len(rows) == 0 {
		cols = []string{PlaceholderColumn}
		rows = []map[string]any{{PlaceholderColumn: PlaceholderValue}}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := opts.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name data sheet: %w", err)
	}

	w := &sheetWriter{f: f, sheet: sheet, cols: cols, opts: opts}
	if err := w.write(rows); err != nil {
		return nil, err
	}

	if opts.IncludeMetadata {
		if err := writeMetadata(f, req, cols, now); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	cols  []string
	opts  FormatOptions

	headerRow int // 0 without headers
	lastRow   int
}

func (w *sheetWriter) write(rows []map[string]any) error {
	row := 1
	if w.opts.IncludeHeaders {
		header := make([]any, len(w.cols))
		for i, c := range w.cols {
			header[i] = c
		}
		if err := w.f.SetSheetRow(w.sheet, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.headerRow = 1
		row++
	}

	widths := make([]int, len(w.cols))
	for i, c := range w.cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, r := range rows {
		values := make([]any, len(w.cols))
		for i, c := range w.cols {
			values[i] = cellValue(r[c])
			if n := utf8.RuneCountInString(fmt.Sprint(values[i])); values[i] != nil && n > widths[i] {
				widths[i] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}
	w.lastRow = row - 1

	if w.opts.FreezePanes && w.headerRow > 0 {
		err := w.f.SetPanes(w.sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
		if err != nil {
			return fmt.Errorf("freeze header: %w", err)
		}
	}
	if w.opts.AutoFilter && w.headerRow > 0 {
		if err := w.f.AutoFilter(w.sheet, w.rangeRef(1, w.lastRow), nil); err != nil {
			return fmt.Errorf("auto filter: %w", err)
		}
	}
	if w.opts.ColumnWidthAuto {
		for i, width := range widths {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			if err := w.f.SetColWidth(w.sheet, name, name, float64(width+2)); err != nil {
				return fmt.Errorf("column width: %w", err)
			}
		}
	}
	return w.applyStyle()
}

func (w *sheetWriter) rangeRef(fromRow, toRow int) string {
	last, _ := excelize.ColumnNumberToName(len(w.cols))
	return fmt.Sprintf("A%d:%s%d", fromRow, last, toRow)
}

func (w *sheetWriter) styleRange(fromRow, toRow int, style *excelize.Style) error {
	if fromRow > toRow {
		return nil
	}
	id, err := w.f.NewStyle(style)
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(w.cols))
	return w.f.SetCellStyle(w.sheet, fmt.Sprintf("A%d", fromRow), fmt.Sprintf("%s%d", last, toRow), id)
}

func (w *sheetWriter) applyStyle() error {
	firstData := w.headerRow + 1

	switch w.opts.StyleTemplate {
	case StyleProfessional:
		if w.headerRow == 0 {
			return nil
		}
		return w.styleRange(1, 1, &excelize.Style{
			Font:      &excelize.Font{Family: "Arial", Size: 11, Bold: true, Color: "FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		})

	case StyleColorful:
		if w.headerRow > 0 {
			err := w.styleRange(1, 1, &excelize.Style{
				Font: &excelize.Font{Family: "Calibri", Size: 11, Bold: true, Color: "FFFFFF"},
				Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
			})
			if err != nil {
				return err
			}
		}
		band := &excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6F2FF"}}}
		for r := firstData; r <= w.lastRow; r += 2 {
			if err := w.styleRange(r, r, band); err != nil {
				return err
			}
		}
		return nil

	case StyleMinimal:
		border := []excelize.Border{
			{Type: "left", Color: "DDDDDD", Style: 1},
			{Type: "right", Color: "DDDDDD", Style: 1},
			{Type: "top", Color: "DDDDDD", Style: 1},
			{Type: "bottom", Color: "DDDDDD", Style: 1},
		}
		if w.headerRow > 0 {
			err := w.styleRange(1, 1, &excelize.Style{
				Font:   &excelize.Font{Family: "Segoe UI", Size: 11, Bold: true},
				Border: border,
			})
			if err != nil {
				return err
			}
		}
		return w.styleRange(firstData, w.lastRow, &excelize.Style{Border: border})

	default:
		return nil
	}
}

// cellValue converts a decoded JSON value into something excelize can store.
// Nested objects and arrays are written as JSON text.
func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, time.Time:
		return v
	default:
		b, err := json.Marshal(v, json.Deterministic(true))
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func writeMetadata(f *excelize.File, req *Request, cols []string, now time.Time) error {
	if _, err := f.NewSheet(MetadataSheet); err != nil {
		return fmt.Errorf("create metadata sheet: %w", err)
	}

	columns := "None"
	if len(req.Result) > 0 {
		columns = strings.Join(cols, ", ")
	}
	entries := [][2]any{{"Metadata", "Value"}}
	if req.FormatOptions.IncludeTimestamp {
		entries = append(entries, [2]any{"Report Generated", now.Format("2006-01-02 15:04:05")})
	}
	sqlRow := 0
	if req.FormatOptions.IncludeQuery {
		entries = append(entries, [2]any{"Natural Language Query", req.Query})
		entries = append(entries, [2]any{"SQL Query", req.SQLQuery})
		sqlRow = len(entries)
	}
	entries = append(entries,
		[2]any{"Number of Records", len(req.Result)},
		[2]any{"Columns", columns},
	)

	widths := [2]int{}
	for i, e := range entries {
		row := []any{e[0], e[1]}
		if err := f.SetSheetRow(MetadataSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
		for j := range 2 {
			widths[j] = max(widths[j], utf8.RuneCountInString(fmt.Sprint(e[j])))
		}
	}
	if sqlRow > 0 {
		if err := f.SetRowHeight(MetadataSheet, sqlRow, 60); err != nil {
			return err
		}
	}
	for j, col := range []string{"A", "B"} {
		if err := f.SetColWidth(MetadataSheet, col, col, float64(min(widths[j]+2, maxMetadataWidth))); err != nil {
			return err
		}
	}
	return nil
}
