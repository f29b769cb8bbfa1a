package daemon

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/config"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

type fakeProvider struct {
	*testutil.HashEmbedder
}

func (fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "North had revenue of 1000.", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:             dir,
		WorkbookPath:        testutil.SalesWorkbook(t, dir),
		IndexBackend:        config.BackendSQLite,
		EmbeddingDimensions: testDim,
		ChunkSize:           1200,
		ChunkOverlap:        200,
		ChunkMin:            400,
		UnitMode:            "row",
		TopK:                15,
		SimilarityThreshold: 0.4,
		ProviderTimeout:     time.Second,
		EmbedMaxRetries:     0,
		GenerateMaxRetries:  0,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := newApp(context.Background(), cfg, fakeProvider{testutil.NewHashEmbedder(testDim)})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestNewApp_RequiresProvider(t *testing.T) {
	_, err := NewApp(context.Background(), testConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHEETRAG_OPENAI_API_KEY")
}

func TestNewApp_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	app := newTestApp(t, cfg)

	assert.Nil(t, app.History())
	assert.FileExists(t, cfg.WorkbookPath)
	assert.DirExists(t, filepath.Join(cfg.DataDir, "index"))

	_, ready, err := app.Query.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)

	// no history to recover from
	app.RecoverInterruptedJobs(context.Background())
}

func TestIndexWorkbook(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, indexWorkbook(ctx, cmd, app, false, false))
	assert.Contains(t, out.String(), "5 units, 5 chunks")

	answer, err := app.Query.Answer(ctx, "What was North revenue?")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerStatusOK, answer.Status)

	out.Reset()
	require.NoError(t, indexWorkbook(ctx, cmd, app, false, false))
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, indexWorkbook(ctx, cmd, app, true, false))
	assert.Contains(t, out.String(), "indexed")

	out.Reset()
	require.NoError(t, indexWorkbook(ctx, cmd, app, false, true))
	assert.Contains(t, out.String(), "index cleared")

	_, ready, err := app.Query.Ready(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestIndexWorkbook_MissingWorkbook(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkbookPath = filepath.Join(t.TempDir(), "missing.xlsx")
	app := newTestApp(t, cfg)

	err := indexWorkbook(context.Background(), &cobra.Command{}, app, false, false)
	assert.ErrorIs(t, err, domain.ErrWorkbookNotFound)
}

func TestProviderPolicy(t *testing.T) {
	p := providerPolicy(5, 3*time.Second)
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 3*time.Second, p.AttemptTimeout)

	p = providerPolicy(-1, time.Second)
	assert.Equal(t, 3, p.MaxRetries)
}
