package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each lowercase token
// is hashed into a bucket; the vector is L2-normalized, so identical texts
// embed identically and texts sharing words score higher.
type HashEmbedder struct {
	Dim       int
	ModelName string
	// FailAfter makes every call after the first FailAfter calls fail; zero
	// disables failures.
	FailAfter int

	mu    sync.Mutex
	calls int
}

// NewHashEmbedder creates a HashEmbedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim, ModelName: "hash-embedder"}
}

// ErrEmbedderFailure is returned once FailAfter calls have been made.
var ErrEmbedderFailure = errors.New("embedder failure")

// GenerateEmbedding embeds text.
func (e *HashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	calls := e.calls
	e.mu.Unlock()
	if e.FailAfter > 0 && calls > e.FailAfter {
		return nil, ErrEmbedderFailure
	}

	vec := make([]float32, e.Dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(e.Dim))] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

// Model returns the configured model name.
func (e *HashEmbedder) Model() string {
	return e.ModelName
}

// Calls returns how many embeddings were requested.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
