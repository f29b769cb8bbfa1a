package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkConfig
		wantErr bool
	}{
		{"defaults", DefaultChunkConfig(), false},
		{"no overlap", ChunkConfig{MaxChars: 100, MinChars: 0, Overlap: 0}, false},
		{"zero max", ChunkConfig{MaxChars: 0}, true},
		{"overlap equals max", ChunkConfig{MaxChars: 100, Overlap: 100}, true},
		{"negative overlap", ChunkConfig{MaxChars: 100, Overlap: -1}, true},
		{"min above max", ChunkConfig{MaxChars: 100, MinChars: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidChunkConfig))
				assert.Equal(t, ErrCodeValidation, CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIndexManifestReady(t *testing.T) {
	var nilManifest *IndexManifest
	assert.False(t, nilManifest.Ready())
	assert.False(t, (&IndexManifest{Dimension: 3}).Ready())
	assert.True(t, (&IndexManifest{Dimension: 3, ChunkCount: 1}).Ready())
}

func TestParseUnitMode(t *testing.T) {
	mode, err := ParseUnitMode("")
	require.NoError(t, err)
	assert.Equal(t, UnitModeRow, mode)

	mode, err = ParseUnitMode(" Sheet ")
	require.NoError(t, err)
	assert.Equal(t, UnitModeSheet, mode)

	_, err = ParseUnitMode("column")
	assert.Error(t, err)
}

func TestRowLabel(t *testing.T) {
	assert.Equal(t, "", ChunkMetadata{}.RowLabel())
	assert.Equal(t, "4", ChunkMetadata{RowStart: 4, RowEnd: 4}.RowLabel())
	assert.Equal(t, "2-9", ChunkMetadata{RowStart: 2, RowEnd: 9}.RowLabel())
}

func TestDomainErrorWrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrIndexing, cause)

	assert.True(t, errors.Is(err, ErrIndexing))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrExtraction))
	assert.Equal(t, ErrCodeIndexing, CodeOf(err))
	assert.Equal(t, "", CodeOf(cause))
	assert.Contains(t, err.Error(), "disk full")
}
