// Package vectorstore persists chunk embeddings and answers similarity
// queries against an immutable snapshot of the current index.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

// Snapshot is a read-only view of one complete index. A snapshot taken
// before a rebuild keeps answering from the old data.
type Snapshot interface {
	Manifest() *domain.IndexManifest
	Search(ctx context.Context, query []float32, limit int, minScore float32) ([]domain.ScoredChunk, error)
}

// Store holds at most one index and replaces it wholesale.
type Store interface {
	// Current returns the active snapshot, or nil when no index exists.
	Current(ctx context.Context) (Snapshot, error)
	// Replace persists manifest and chunks as the new index. Readers see
	// either the old index or the new one, never a mix.
	Replace(ctx context.Context, manifest *domain.IndexManifest, chunks []domain.Chunk) error
	// Clear removes the persisted index.
	Clear(ctx context.Context) error
	Close() error
}

// ValidateIndex checks that chunks match the manifest before they are
// written.
func ValidateIndex(manifest *domain.IndexManifest, chunks []domain.Chunk) error {
	if manifest == nil {
		return fmt.Errorf("manifest is required")
	}
	if manifest.ID == "" {
		return fmt.Errorf("manifest id is required")
	}
	if manifest.ChunkCount != len(chunks) {
		return fmt.Errorf("manifest chunk count %d does not match %d chunks", manifest.ChunkCount, len(chunks))
	}
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk id is required")
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate chunk id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		if len(c.Embedding) != manifest.Dimension {
			return fmt.Errorf("chunk %s has dimension %d, manifest says %d", c.ID, len(c.Embedding), manifest.Dimension)
		}
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// memorySnapshot ranks chunks by brute-force cosine similarity.
type memorySnapshot struct {
	manifest *domain.IndexManifest
	chunks   []domain.Chunk
}

func newMemorySnapshot(manifest *domain.IndexManifest, chunks []domain.Chunk) *memorySnapshot {
	m := *manifest
	return &memorySnapshot{manifest: &m, chunks: chunks}
}

func (s *memorySnapshot) Manifest() *domain.IndexManifest {
	m := *s.manifest
	return &m
}

func (s *memorySnapshot) Search(ctx context.Context, query []float32, limit int, minScore float32) ([]domain.ScoredChunk, error) {
	if len(query) != s.manifest.Dimension {
		return nil, domain.Wrap(domain.ErrConfigurationMismatch,
			fmt.Errorf("query dimension %d, index dimension %d", len(query), s.manifest.Dimension))
	}
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	results := make([]domain.ScoredChunk, 0, len(s.chunks))
	for i, c := range s.chunks {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := CosineSimilarity(query, c.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: score})
	}

	SortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SortScored orders results by descending score, then by position in the
// index so equal scores rank deterministically.
func SortScored(results []domain.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.UnitIndex != b.Chunk.UnitIndex {
			return a.Chunk.UnitIndex < b.Chunk.UnitIndex
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})
}
