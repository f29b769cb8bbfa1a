package testutil

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet describes one worksheet of a generated fixture workbook. Rows are
// written from A1 downwards; a nil row leaves that spreadsheet row empty.
type Sheet struct {
	Name string
	Rows [][]any
}

// WriteWorkbook writes an .xlsx file with the given sheets under dir and
// returns its path.
func WriteWorkbook(t *testing.T, dir, name string, sheets ...Sheet) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("new sheet %q: %v", s.Name, err)
		}
		for r, row := range s.Rows {
			if row == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				t.Fatalf("set row %d of %q: %v", r+1, s.Name, err)
			}
		}
	}

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

// SalesWorkbook writes the small regional sales fixture used across tests.
func SalesWorkbook(t *testing.T, dir string) string {
	t.Helper()
	return WriteWorkbook(t, dir, "sales.xlsx",
		Sheet{Name: "Sales", Rows: [][]any{
			{"Region", "Revenue", "Quarter"},
			{"North", 1000, "Q1"},
			{"South", 750, "Q1"},
			{"East", 430, "Q2"},
		}},
		Sheet{Name: "Staff", Rows: [][]any{
			{"Name", "Team"},
			{"Ada", "North"},
			{"Linus", "South"},
		}},
	)
}
