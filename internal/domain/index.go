package domain

import (
	"fmt"
	"time"
)

// ChunkConfig controls how unit text is split into chunks.
type ChunkConfig struct {
	MaxChars int `json:"max_chars"`
	MinChars int `json:"min_chars"`
	Overlap  int `json:"overlap"`
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1200,
		MinChars: 400,
		Overlap:  200,
	}
}

// Validate checks the window relationships the chunker depends on.
func (c ChunkConfig) Validate() error {
	if c.MaxChars <= 0 {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidChunkConfig.Message,
			fmt.Errorf("max_chars must be > 0, got %d", c.MaxChars))
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChars {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidChunkConfig.Message,
			fmt.Errorf("overlap must be >= 0 and < max_chars, got %d", c.Overlap))
	}
	if c.MinChars < 0 || c.MinChars > c.MaxChars {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidChunkConfig.Message,
			fmt.Errorf("min_chars must be within [0, max_chars], got %d", c.MinChars))
	}
	return nil
}

// IndexManifest describes a persisted index: what built it and from what.
type IndexManifest struct {
	ID                string      `json:"id"`
	EmbeddingModel    string      `json:"embedding_model"`
	Dimension         int         `json:"dimension"`
	ChunkConfig       ChunkConfig `json:"chunk_config"`
	UnitMode          UnitMode    `json:"unit_mode"`
	Source            string      `json:"source"`
	SourceFingerprint string      `json:"source_fingerprint"`
	UnitCount         int         `json:"unit_count"`
	ChunkCount        int         `json:"chunk_count"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Ready reports whether the manifest describes a queryable index.
func (m *IndexManifest) Ready() bool {
	return m != nil && m.ChunkCount > 0 && m.Dimension > 0
}
