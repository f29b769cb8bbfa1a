package extract

import (
	"strconv"
	"strings"
)

// renderRow formats a data row as "Sheet: s | Row n | col: val | ...".
// Empty cells are left out.
func renderRow(sheet string, rowNum int, columns, cells []string) string {
	var b strings.Builder
	b.WriteString("Sheet: ")
	b.WriteString(sheet)
	b.WriteString(" | Row ")
	b.WriteString(strconv.Itoa(rowNum))
	for i, v := range cells {
		if v == "" {
			continue
		}
		b.WriteString(" | ")
		b.WriteString(columns[i])
		b.WriteString(": ")
		b.WriteString(v)
	}
	return b.String()
}

// renderTable formats a whole sheet as a markdown table headed by the sheet
// name. Short rows are padded with empty cells.
func renderTable(sheet string, columns []string, rows []bufferedRow) string {
	var b strings.Builder
	b.WriteString("Sheet: ")
	b.WriteString(sheet)
	b.WriteByte('\n')

	writeTableRow(&b, columns, len(columns))
	b.WriteString("|")
	for range columns {
		b.WriteString(" --- |")
	}
	b.WriteByte('\n')
	for _, r := range rows {
		writeTableRow(&b, r.cells, len(columns))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeTableRow(b *strings.Builder, cells []string, width int) {
	b.WriteString("|")
	for i := 0; i < width; i++ {
		v := ""
		if i < len(cells) {
			v = strings.ReplaceAll(cells[i], "|", `\|`)
		}
		b.WriteString(" ")
		b.WriteString(v)
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}
