package domain

// ChunkMetadata is the structural metadata a chunk inherits from its unit.
type ChunkMetadata struct {
	Source      string      `json:"source"`
	Sheet       string      `json:"sheet"`
	RowStart    int         `json:"row_start,omitempty"`
	RowEnd      int         `json:"row_end,omitempty"`
	Columns     []string    `json:"columns,omitempty"`
	ContentType ContentType `json:"content_type"`
}

// Chunk is a bounded text fragment of a document unit, the unit of indexing
// and retrieval.
type Chunk struct {
	ID         string
	UnitIndex  int
	ChunkIndex int
	ChunkCount int
	Content    string
	Metadata   ChunkMetadata
	Embedding  []float32
}

// ScoredChunk pairs a retrieved chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}
