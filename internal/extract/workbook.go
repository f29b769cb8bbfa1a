package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/shakinm/xlsReader/xls/structure"
	"github.com/xuri/excelize/v2"
)

// rowFunc receives a 1-based spreadsheet row number and its raw cell values.
type rowFunc func(rowNum int, cells []string) error

// workbook is a read-only view over a spreadsheet file.
type workbook interface {
	SheetNames() []string
	EachRow(ctx context.Context, sheet string, fn rowFunc) error
	Close() error
}

// SupportedExtensions lists the workbook file extensions the extractor reads.
var SupportedExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".xls"}

// IsSupported reports whether path has a readable workbook extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func openWorkbook(path string) (workbook, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		return &xlsxWorkbook{f: f}, nil
	case ".xls":
		wb, err := xls.OpenFile(path)
		if err != nil {
			return nil, err
		}
		return &xlsWorkbook{wb: wb}, nil
	}
	return nil, fmt.Errorf("unsupported extension %q", filepath.Ext(path))
}

// xlsxWorkbook streams rows with the excelize row iterator so large sheets
// are never loaded whole.
type xlsxWorkbook struct {
	f *excelize.File
}

func (w *xlsxWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *xlsxWorkbook) EachRow(ctx context.Context, sheet string, fn rowFunc) error {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	rowNum := 0
	for rows.Next() {
		rowNum++
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("row %d: %w", rowNum, err)
		}
		if err := fn(rowNum, cells); err != nil {
			return err
		}
	}
	return rows.Error()
}

func (w *xlsxWorkbook) Close() error {
	return w.f.Close()
}

// xlsWorkbook reads legacy BIFF workbooks.
type xlsWorkbook struct {
	wb xls.Workbook
}

func (w *xlsWorkbook) SheetNames() []string {
	names := make([]string, 0, w.wb.GetNumberSheets())
	for i := 0; i < w.wb.GetNumberSheets(); i++ {
		sheet, err := w.wb.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		names = append(names, sheet.GetName())
	}
	return names
}

func (w *xlsWorkbook) EachRow(ctx context.Context, name string, fn rowFunc) error {
	for i := 0; i < w.wb.GetNumberSheets(); i++ {
		sheet, err := w.wb.GetSheet(i)
		if err != nil {
			return err
		}
		if sheet == nil || sheet.GetName() != name {
			continue
		}
		for r, row := range sheet.GetRows() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cells []string
			if row != nil {
				cells = xlsCellValues(row.GetCols())
			}
			if err := fn(r+1, cells); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("sheet %q not found", name)
}

func (w *xlsWorkbook) Close() error {
	return nil
}

func xlsCellValues(cols []structure.CellData) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		if col == nil {
			out = append(out, "")
			continue
		}
		val := col.GetString()
		if val == "" {
			if num := col.GetFloat64(); num != 0 {
				val = strconv.FormatFloat(num, 'f', -1, 64)
			} else if in := col.GetInt64(); in != 0 {
				val = strconv.FormatInt(in, 10)
			}
		}
		out = append(out, val)
	}
	return out
}
