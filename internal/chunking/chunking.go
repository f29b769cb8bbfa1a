// Package chunking splits document units into bounded, overlapping chunks.
package chunking

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/fingerprint"
)

// Split chunks every unit with cfg. Chunk boundaries and IDs are a pure
// function of the unit text, its metadata and cfg.
func Split(units []domain.DocumentUnit, cfg domain.ChunkConfig) ([]domain.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(units))
	for i, u := range units {
		chunks = append(chunks, SplitUnit(i, u, cfg)...)
	}
	return chunks, nil
}

// SplitUnit chunks a single unit. cfg must already be valid.
func SplitUnit(unitIndex int, u domain.DocumentUnit, cfg domain.ChunkConfig) []domain.Chunk {
	parts := chunkText(u.Content, cfg)
	meta := u.Metadata()

	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{
			ID:         chunkID(unitIndex, i, meta, p),
			UnitIndex:  unitIndex,
			ChunkIndex: i,
			ChunkCount: len(parts),
			Content:    p,
			Metadata:   meta,
		}
	}
	return chunks
}

func chunkID(unitIndex, chunkIndex int, meta domain.ChunkMetadata, content string) string {
	return fingerprint.Parts(
		meta.Source,
		meta.Sheet,
		strconv.Itoa(meta.RowStart),
		strconv.Itoa(unitIndex),
		strconv.Itoa(chunkIndex),
		content,
	)
}

// chunkText cuts text into windows of at most MaxChars runes. A window ends at
// the last whitespace after MinChars when there is one, and the next window
// starts Overlap runes before the previous end.
func chunkText(text string, cfg domain.ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.MaxChars+2)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		start = nextStart
	}

	return chunks
}
