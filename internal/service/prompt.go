package service

import (
	"strconv"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

const analystInstructions = `You are an expert spreadsheet analyst answering questions about Excel workbooks.
Answer the user's question in detail using only the information in the context below.

Guidelines:
1. Structure: respect the workbook structure of sheets, rows and columns, and name the sheet a value comes from.
2. Calculations: pick the relevant numbers precisely, show intermediate steps for sums, averages, percentages and growth rates, round to two decimals where appropriate and state units.
3. Comparisons: when the data spans several categories such as regions, products or periods, say which category each result belongs to and point out notable differences or outliers.
4. People and organizations: keep names, roles and team relationships exactly as recorded.
5. Transparency: if the context is incomplete or ambiguous, say so. If it does not contain the answer, say you do not have enough data. Never invent values.
6. Citations: cite the sheet and row of the data you use, for example "according to sheet 'Sales', row 23".`

// BuildPrompt assembles the generation prompt from the question and the
// retrieved chunks, labelling each context block with its sheet and row.
func BuildPrompt(question string, results []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(analystInstructions)
	b.WriteString("\n\nContext:\n")
	if len(results) == 0 {
		b.WriteString("(no matching rows)\n")
	}
	for i, r := range results {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(contextLabel(r.Chunk.Metadata))
		b.WriteString("\n")
		b.WriteString(r.Chunk.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func contextLabel(m domain.ChunkMetadata) string {
	label := "Sheet '" + m.Sheet + "'"
	if rows := m.RowLabel(); rows != "" {
		if m.RowEnd > m.RowStart {
			label += ", rows " + rows
		} else {
			label += ", row " + rows
		}
	}
	return label
}
