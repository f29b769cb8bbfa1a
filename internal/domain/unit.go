package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentType distinguishes row-level units from whole-sheet tables.
type ContentType string

const (
	ContentTypeRow   ContentType = "row"
	ContentTypeTable ContentType = "table"
)

// UnitMode selects how the extractor groups spreadsheet rows into units.
type UnitMode string

const (
	UnitModeRow   UnitMode = "row"
	UnitModeSheet UnitMode = "sheet"
)

// ParseUnitMode returns the UnitMode for s, defaulting to rows.
func ParseUnitMode(s string) (UnitMode, error) {
	switch UnitMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitModeRow:
		return UnitModeRow, nil
	case UnitModeSheet:
		return UnitModeSheet, nil
	}
	return "", fmt.Errorf("unknown unit mode %q", s)
}

// DocumentUnit is one normalized piece of spreadsheet text produced by a
// single extraction pass. Units are never mutated after extraction.
type DocumentUnit struct {
	Content     string
	Source      string
	Sheet       string
	RowIndex    int // 1-based spreadsheet row, 0 for a whole-sheet unit
	RowEnd      int // last row covered by the unit
	Columns     []string
	ContentType ContentType
}

// Metadata flattens the unit's structural metadata for storage alongside
// chunks.
func (u DocumentUnit) Metadata() ChunkMetadata {
	cols := make([]string, len(u.Columns))
	copy(cols, u.Columns)
	return ChunkMetadata{
		Source:      u.Source,
		Sheet:       u.Sheet,
		RowStart:    u.RowIndex,
		RowEnd:      u.RowEnd,
		Columns:     cols,
		ContentType: u.ContentType,
	}
}

// RowLabel renders the unit's row span for prompts and logs.
func (m ChunkMetadata) RowLabel() string {
	switch {
	case m.RowStart <= 0:
		return ""
	case m.RowEnd <= m.RowStart:
		return strconv.Itoa(m.RowStart)
	default:
		return fmt.Sprintf("%d-%d", m.RowStart, m.RowEnd)
	}
}
