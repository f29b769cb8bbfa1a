package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowUnit(row int, content string) domain.DocumentUnit {
	return domain.DocumentUnit{
		Content:     content,
		Source:      "sales.xlsx",
		Sheet:       "Sales",
		RowIndex:    row,
		RowEnd:      row,
		Columns:     []string{"Region", "Revenue"},
		ContentType: domain.ContentTypeRow,
	}
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word" + strings.Repeat("x", i%5)
	}
	return strings.Join(parts, " ")
}

func TestChunkTextShortTextSingleChunk(t *testing.T) {
	cfg := domain.DefaultChunkConfig()
	chunks := chunkText("  Sheet: Sales | Row 2 | Region: North  ", cfg)
	assert.Equal(t, []string{"Sheet: Sales | Row 2 | Region: North"}, chunks)
	assert.Nil(t, chunkText("   ", cfg))
}

func TestChunkTextRespectsMaxChars(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 100, MinChars: 40, Overlap: 20}
	text := words(200)

	chunks := chunkText(text, cfg)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars, "chunk %d", i)
		assert.NotEmpty(t, c)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 50, MinChars: 0, Overlap: 10}
	text := strings.Repeat("abcdefghij", 12)

	chunks := chunkText(text, cfg)
	require.Len(t, chunks, 3)
	assert.Equal(t, text[:50], chunks[0])
	assert.Equal(t, text[40:90], chunks[1])
	assert.Equal(t, text[80:], chunks[2])
}

func TestChunkTextCutsAtWhitespace(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 12, MinChars: 4, Overlap: 0}
	chunks := chunkText("alpha beta gamma delta", cfg)
	assert.Equal(t, []string{"alpha beta", "gamma delta"}, chunks)
}

func TestChunkTextMultibyte(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 10, MinChars: 0, Overlap: 2}
	text := strings.Repeat("é", 25)

	chunks := chunkText(text, cfg)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestSplitDeterministic(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 60, MinChars: 20, Overlap: 10}
	units := []domain.DocumentUnit{
		rowUnit(2, "Sheet: Sales | Row 2 | Region: North | Revenue: 1000"),
		rowUnit(3, words(60)),
	}

	a, err := Split(units, cfg)
	require.NoError(t, err)
	b, err := Split(units, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitMetadataAndIDs(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 60, MinChars: 20, Overlap: 10}
	units := []domain.DocumentUnit{
		rowUnit(2, "Sheet: Sales | Row 2 | Region: North | Revenue: 1000"),
		rowUnit(3, words(60)),
		rowUnit(4, "Sheet: Sales | Row 2 | Region: North | Revenue: 1000"),
	}

	chunks, err := Split(units, cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	first := chunks[0]
	assert.Equal(t, 0, first.UnitIndex)
	assert.Equal(t, 0, first.ChunkIndex)
	assert.Equal(t, 1, first.ChunkCount)
	assert.Equal(t, "Sales", first.Metadata.Sheet)
	assert.Equal(t, 2, first.Metadata.RowStart)

	ids := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.Equal(t, units[c.UnitIndex].RowIndex, c.Metadata.RowStart)
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, 2, last.UnitIndex)
	assert.NotEqual(t, first.ID, last.ID)
}

func TestSplitSplitsOnlyLongUnits(t *testing.T) {
	cfg := domain.ChunkConfig{MaxChars: 20, MinChars: 0, Overlap: 0}
	exact := strings.Repeat("a", 20)

	chunks, err := Split([]domain.DocumentUnit{rowUnit(2, exact)}, cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, exact, chunks[0].Content)
}

func TestSplitInvalidConfig(t *testing.T) {
	_, err := Split([]domain.DocumentUnit{rowUnit(2, "x")}, domain.ChunkConfig{MaxChars: 10, Overlap: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidChunkConfig)
}
