package domain

// AnswerStatus reports whether an answer came from a ready index.
type AnswerStatus string

const (
	AnswerStatusOK       AnswerStatus = "ok"
	AnswerStatusNotReady AnswerStatus = "not_ready"
)

// NotReadyMessage is returned as the answer text when no index is available.
const NotReadyMessage = "The index is not ready. Upload a workbook and rebuild the index, then ask again."

// Source is a retrieved chunk cited by an answer.
type Source struct {
	ChunkID  string        `json:"chunk_id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float32       `json:"score"`
}

// Answer is the result of a question against the index.
type Answer struct {
	Status  AnswerStatus
	Answer  string
	Sources []Source
	IndexID string
}

// NotReadyAnswer is the well-defined result for a missing or empty index.
func NotReadyAnswer() *Answer {
	return &Answer{
		Status:  AnswerStatusNotReady,
		Answer:  NotReadyMessage,
		Sources: []Source{},
	}
}

// SourceFromScored converts a retrieval hit into an answer source.
func SourceFromScored(sc ScoredChunk) Source {
	return Source{
		ChunkID:  sc.Chunk.ID,
		Content:  sc.Chunk.Content,
		Metadata: sc.Chunk.Metadata,
		Score:    sc.Score,
	}
}
