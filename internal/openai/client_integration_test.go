//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	apiKey := os.Getenv("SHEETRAG_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("SHEETRAG_OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClientWithConfig(Config{APIKey: apiKey})
	ctx := context.Background()
	text := "Sheet: Sales | Row 2 | Region: North | Revenue: 1000"

	embedding, err := client.GenerateEmbedding(ctx, text)

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Generate_RealAPI(t *testing.T) {
	apiKey := os.Getenv("SHEETRAG_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("SHEETRAG_OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClientWithConfig(Config{APIKey: apiKey})
	out, err := client.Generate(context.Background(), "Reply with the single word: ready")

	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
