package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func buildIndex(t *testing.T, id string, texts ...string) (*domain.IndexManifest, []domain.Chunk, *testutil.HashEmbedder) {
	t.Helper()
	emb := testutil.NewHashEmbedder(64)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		vec, err := emb.GenerateEmbedding(context.Background(), text)
		require.NoError(t, err)
		chunks[i] = domain.Chunk{
			ID:         id + "-" + text,
			UnitIndex:  i,
			ChunkCount: 1,
			Content:    text,
			Metadata:   domain.ChunkMetadata{Source: "sales.xlsx", Sheet: "Sales", RowStart: i + 2, RowEnd: i + 2, ContentType: domain.ContentTypeRow},
			Embedding:  vec,
		}
	}
	manifest := &domain.IndexManifest{
		ID:             id,
		EmbeddingModel: emb.Model(),
		Dimension:      64,
		ChunkConfig:    domain.DefaultChunkConfig(),
		UnitMode:       domain.UnitModeRow,
		Source:         "sales.xlsx",
		UnitCount:      len(texts),
		ChunkCount:     len(texts),
		CreatedAt:      fixedTime,
	}
	return manifest, chunks, emb
}

var salesRows = []string{
	"Sheet: Sales | Row 2 | Region: North | Revenue: 1000",
	"Sheet: Sales | Row 3 | Region: South | Revenue: 750",
	"Sheet: Sales | Row 4 | Region: East | Revenue: 430",
}

func TestSQLiteStoreEmpty(t *testing.T) {
	store, err := OpenSQLiteStore(context.Background(), t.TempDir())
	require.NoError(t, err)

	snap, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLiteStoreReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, t.TempDir())
	require.NoError(t, err)

	manifest, chunks, emb := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))

	snap, err := store.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "idx-1", snap.Manifest().ID)

	for _, text := range salesRows {
		q, err := emb.GenerateEmbedding(ctx, text)
		require.NoError(t, err)
		results, err := snap.Search(ctx, q, 3, -1)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, text, results[0].Chunk.Content)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
	}
}

func TestSQLiteStoreSearchLimitAndThreshold(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, t.TempDir())
	require.NoError(t, err)

	manifest, chunks, emb := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))
	snap, _ := store.Current(ctx)

	q, _ := emb.GenerateEmbedding(ctx, salesRows[0])
	results, err := snap.Search(ctx, q, 1, -1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = snap.Search(ctx, q, 10, 0.999)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, salesRows[0], results[0].Chunk.Content)

	results, err = snap.Search(ctx, q, 0, -1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStoreSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, t.TempDir())
	require.NoError(t, err)

	manifest, chunks, _ := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))
	snap, _ := store.Current(ctx)

	_, err = snap.Search(ctx, make([]float32, 8), 3, 0)
	assert.ErrorIs(t, err, domain.ErrConfigurationMismatch)
}

func TestSQLiteStoreReloadPreservesRanking(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenSQLiteStore(ctx, dir)
	require.NoError(t, err)

	manifest, chunks, emb := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))

	q, _ := emb.GenerateEmbedding(ctx, "revenue for North")
	before, _ := store.Current(ctx)
	want, err := before.Search(ctx, q, 3, -1)
	require.NoError(t, err)

	reopened, err := OpenSQLiteStore(ctx, dir)
	require.NoError(t, err)
	after, err := reopened.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, manifest, after.Manifest())

	got, err := after.Search(ctx, q, 3, -1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteStoreSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, t.TempDir())
	require.NoError(t, err)

	first, chunks, emb := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, first, chunks))
	old, _ := store.Current(ctx)

	second, chunks2, _ := buildIndex(t, "idx-2", "Sheet: Staff | Row 2 | Name: Ada")
	require.NoError(t, store.Replace(ctx, second, chunks2))

	assert.Equal(t, "idx-1", old.Manifest().ID)
	q, _ := emb.GenerateEmbedding(ctx, salesRows[1])
	results, err := old.Search(ctx, q, 5, -1)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	current, _ := store.Current(ctx)
	assert.Equal(t, "idx-2", current.Manifest().ID)
}

func TestSQLiteStoreFailedReplaceKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenSQLiteStore(ctx, dir)
	require.NoError(t, err)

	manifest, chunks, _ := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))

	bad, badChunks, _ := buildIndex(t, "idx-2", salesRows...)
	badChunks[1].Embedding = badChunks[1].Embedding[:10]
	require.Error(t, store.Replace(ctx, bad, badChunks))

	snap, _ := store.Current(ctx)
	assert.Equal(t, "idx-1", snap.Manifest().ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, IndexFileName, entries[0].Name())
}

func TestSQLiteStoreClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenSQLiteStore(ctx, dir)
	require.NoError(t, err)

	manifest, chunks, _ := buildIndex(t, "idx-1", salesRows...)
	require.NoError(t, store.Replace(ctx, manifest, chunks))
	require.NoError(t, store.Clear(ctx))

	snap, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.Clear(ctx))
}

func TestOpenSQLiteStoreRemovesStaleTemps(t *testing.T) {
	dir := t.TempDir()
	var stale []string
	for _, name := range []string{
		"index-abc" + tmpSuffix,
		"index-abc" + tmpSuffix + "-journal",
		"index-def" + tmpSuffix + "-wal",
		"index-def" + tmpSuffix + "-shm",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("partial"), 0o600))
		stale = append(stale, path)
	}
	var keep []string
	for _, name := range []string{"workbook.xlsx", "index-notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("keep"), 0o600))
		keep = append(keep, path)
	}

	_, err := OpenSQLiteStore(context.Background(), dir)
	require.NoError(t, err)

	for _, path := range stale {
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}
	for _, path := range keep {
		_, err = os.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestIsTempName(t *testing.T) {
	assert.True(t, isTempName("index-1"+tmpSuffix))
	assert.True(t, isTempName("index-1"+tmpSuffix+"-journal"))
	assert.False(t, isTempName(IndexFileName))
	assert.False(t, isTempName("index-1"+tmpSuffix+"-backup"))
	assert.False(t, isTempName("other"+tmpSuffix))
}

func TestOpenSQLiteStoreCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFileName), []byte("garbage"), 0o600))

	_, err := OpenSQLiteStore(context.Background(), dir)
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestBlobRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.75e-8}
	assert.Equal(t, v, blobToVector(vectorToBlob(v)))
}
