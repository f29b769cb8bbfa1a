package vectorstore

import (
	"context"
	"testing"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIndex(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *domain.IndexManifest, chunks []domain.Chunk) []domain.Chunk
		wantErr string
	}{
		{"valid", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk { return c }, ""},
		{"missing id", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk { m.ID = ""; return c }, "manifest id"},
		{"count mismatch", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk { return c[:2] }, "chunk count"},
		{"empty chunk id", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk { c[1].ID = ""; return c }, "chunk id is required"},
		{"duplicate chunk id", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk { c[2].ID = c[0].ID; return c }, "duplicate chunk id"},
		{"wrong dimension", func(m *domain.IndexManifest, c []domain.Chunk) []domain.Chunk {
			c[0].Embedding = c[0].Embedding[:3]
			return c
		}, "dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest, chunks, _ := buildIndex(t, "idx-1", salesRows...)
			chunks = tt.mutate(manifest, chunks)
			err := ValidateIndex(manifest, chunks)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, ValidateIndex(nil, nil))
}

func TestSQLiteStoreRejectsDuplicateChunkIDs(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, t.TempDir())
	require.NoError(t, err)

	manifest, chunks, _ := buildIndex(t, "idx-1", salesRows...)
	chunks[1].ID = chunks[0].ID
	require.Error(t, store.Replace(ctx, manifest, chunks))

	snap, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
