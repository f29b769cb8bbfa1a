// Package extract turns spreadsheet workbooks into normalized document units.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

// UnitFunc receives each unit as it is produced.
type UnitFunc func(domain.DocumentUnit) error

// Stats summarizes one extraction pass.
type Stats struct {
	Sheets      int
	EmptySheets int
	Units       int
	SkippedRows int
}

// Extractor reads workbooks into DocumentUnits.
type Extractor struct {
	mode domain.UnitMode
}

// NewExtractor creates an Extractor producing units in the given mode.
func NewExtractor(mode domain.UnitMode) *Extractor {
	if mode == "" {
		mode = domain.UnitModeRow
	}
	return &Extractor{mode: mode}
}

// Mode returns the unit mode.
func (e *Extractor) Mode() domain.UnitMode {
	return e.mode
}

// Walk makes a single pass over every sheet of the workbook at path and
// calls fn for each unit in sheet order. An error from fn stops the walk and
// is returned as is.
func (e *Extractor) Walk(ctx context.Context, path string, fn UnitFunc) (Stats, error) {
	var stats Stats

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, domain.Wrap(domain.ErrExtraction, fmt.Errorf("workbook %s: %w", path, domain.ErrWorkbookNotFound))
		}
		return stats, domain.Wrap(domain.ErrExtraction, err)
	}
	if !IsSupported(path) {
		return stats, domain.Wrap(domain.ErrExtraction, fmt.Errorf("%s: %w", path, domain.ErrUnsupportedWorkbook))
	}

	wb, err := openWorkbook(path)
	if err != nil {
		return stats, domain.Wrap(domain.ErrExtraction, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = wb.Close() }()

	var fnErr error
	emit := func(u domain.DocumentUnit) error {
		if err := fn(u); err != nil {
			fnErr = err
			return err
		}
		stats.Units++
		return nil
	}

	for _, sheet := range wb.SheetNames() {
		stats.Sheets++
		sb := newSheetBuilder(path, sheet, e.mode, emit)
		if err := wb.EachRow(ctx, sheet, sb.addRow); err != nil {
			if fnErr != nil {
				return stats, fnErr
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			return stats, domain.Wrap(domain.ErrExtraction, fmt.Errorf("sheet %q: %w", sheet, err))
		}
		if err := sb.finish(); err != nil {
			return stats, err
		}
		stats.SkippedRows += sb.skipped
		if sb.dataRows == 0 {
			stats.EmptySheets++
			log.Printf("extract: sheet %q has no data rows", sheet)
			continue
		}
		if sb.skipped > 0 {
			log.Printf("extract: sheet %q skipped %d empty rows", sheet, sb.skipped)
		}
	}

	return stats, nil
}

// Extract collects every unit of the workbook at path.
func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.DocumentUnit, error) {
	var units []domain.DocumentUnit
	_, err := e.Walk(ctx, path, func(u domain.DocumentUnit) error {
		units = append(units, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

type bufferedRow struct {
	num   int
	cells []string
}

// sheetBuilder turns the rows of one sheet into units. Row mode emits as rows
// arrive; sheet mode buffers the sheet and emits one table at finish.
type sheetBuilder struct {
	source   string
	sheet    string
	mode     domain.UnitMode
	emit     UnitFunc
	header   []string
	rows     []bufferedRow
	lastRow  int
	dataRows int
	skipped  int
}

func newSheetBuilder(source, sheet string, mode domain.UnitMode, emit UnitFunc) *sheetBuilder {
	return &sheetBuilder{source: source, sheet: sheet, mode: mode, emit: emit}
}

func (b *sheetBuilder) addRow(rowNum int, raw []string) error {
	cells := normalizeCells(raw)
	if len(cells) == 0 {
		if b.header != nil {
			b.skipped++
		}
		return nil
	}
	if b.header == nil {
		b.header = headerNames(cells)
		return nil
	}

	b.dataRows++
	b.lastRow = rowNum
	if b.mode == domain.UnitModeSheet {
		b.rows = append(b.rows, bufferedRow{num: rowNum, cells: cells})
		return nil
	}

	columns := extendColumns(b.header, len(cells))
	return b.emit(domain.DocumentUnit{
		Content:     renderRow(b.sheet, rowNum, columns, cells),
		Source:      b.source,
		Sheet:       b.sheet,
		RowIndex:    rowNum,
		RowEnd:      rowNum,
		Columns:     columns,
		ContentType: domain.ContentTypeRow,
	})
}

func (b *sheetBuilder) finish() error {
	if b.mode != domain.UnitModeSheet || b.dataRows == 0 {
		return nil
	}
	width := len(b.header)
	for _, r := range b.rows {
		if len(r.cells) > width {
			width = len(r.cells)
		}
	}
	columns := extendColumns(b.header, width)
	return b.emit(domain.DocumentUnit{
		Content:     renderTable(b.sheet, columns, b.rows),
		Source:      b.source,
		Sheet:       b.sheet,
		RowIndex:    0,
		RowEnd:      b.lastRow,
		Columns:     columns,
		ContentType: domain.ContentTypeTable,
	})
}

// normalizeCells trims values, folds line breaks and drops trailing empty
// cells. A row with no values returns nil.
func normalizeCells(raw []string) []string {
	out := make([]string, len(raw))
	last := -1
	for i, v := range raw {
		v = strings.Join(strings.Fields(v), " ")
		out[i] = v
		if v != "" {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	return out[:last+1]
}

func columnName(i int) string {
	return "Column " + strconv.Itoa(i+1)
}

// headerNames names each header cell, replacing empty and repeated names with
// their positional Column N.
func headerNames(cells []string) []string {
	seen := make(map[string]bool, len(cells))
	names := make([]string, len(cells))
	for i, c := range cells {
		if c == "" || seen[c] {
			names[i] = columnName(i)
			continue
		}
		seen[c] = true
		names[i] = c
	}
	return names
}

func extendColumns(header []string, width int) []string {
	if width < len(header) {
		width = len(header)
	}
	cols := make([]string, width)
	copy(cols, header)
	for i := len(header); i < width; i++ {
		cols[i] = columnName(i)
	}
	return cols
}
