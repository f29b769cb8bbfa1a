package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/retry"
	"github.com/cloo-solutions/sheetrag/internal/telemetry"
	"github.com/cloo-solutions/sheetrag/internal/vectorstore"
	"github.com/getsentry/sentry-go"
)

// Generator produces a completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultSearchThreshold is the minimum score for raw search hits.
const DefaultSearchThreshold float32 = 0.4

// QueryConfig tunes retrieval and generation
type QueryConfig struct {
	TopK            int
	SearchThreshold float32
	EmbedRetry      retry.Policy
	GenerateRetry   retry.Policy
}

// DefaultQueryConfig returns the query defaults.
func DefaultQueryConfig() QueryConfig {
	gen := retry.DefaultPolicy()
	gen.MaxRetries = 2
	return QueryConfig{
		TopK:            15,
		SearchThreshold: DefaultSearchThreshold,
		EmbedRetry:      retry.DefaultPolicy(),
		GenerateRetry:   gen,
	}
}

// SearchOptions narrows a raw similarity search
type SearchOptions struct {
	Limit    int
	MinScore *float32
}

// SearchResult is a ranked list of chunks from one index
type SearchResult struct {
	IndexID string
	Results []domain.ScoredChunk
}

// QueryService answers questions from the current index snapshot
type QueryService struct {
	store     vectorstore.Store
	embedder  Embedder
	generator Generator
	cfg       QueryConfig
}

// NewQueryService creates a new QueryService instance
func NewQueryService(store vectorstore.Store, embedder Embedder, generator Generator, cfg QueryConfig) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultQueryConfig().TopK
	}
	return &QueryService{
		store:     store,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
	}
}

// Ready reports whether a searchable index exists.
func (s *QueryService) Ready(ctx context.Context) (*domain.IndexManifest, bool, error) {
	snap, err := s.store.Current(ctx)
	if err != nil {
		return nil, false, domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	if snap == nil {
		return nil, false, nil
	}
	m := snap.Manifest()
	return m, m.Ready(), nil
}

// Answer retrieves the top matching chunks and asks the generator to answer
// from them. A missing or empty index yields a not_ready answer, not an error.
func (s *QueryService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuery
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return domain.NotReadyAnswer(), nil
	}
	manifest := snap.Manifest()

	ctx, span := telemetry.StartSpan(ctx, "query.answer", telemetry.SpanAttributes{
		IndexID:   manifest.ID,
		Operation: "answer",
	})
	defer span.End()

	results, err := s.retrieve(ctx, snap, question, s.cfg.TopK, -1)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	prompt := BuildPrompt(question, results)
	var text string
	err = retry.Do(ctx, s.cfg.GenerateRetry, "generate answer", func(callCtx context.Context) error {
		out, err := s.generator.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, domain.Wrap(domain.ErrProvider, fmt.Errorf("generate answer: %w", err))
	}

	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.SourceFromScored(r))
	}

	span.SetStatus(sentry.SpanStatusOK)
	log.Printf("query: answered from index %s with %d sources", manifest.ID, len(sources))
	return &domain.Answer{
		Status:  domain.AnswerStatusOK,
		Answer:  text,
		Sources: sources,
		IndexID: manifest.ID,
	}, nil
}

// Search returns the chunks most similar to query without generating an
// answer. It fails with ErrNotReady when there is no index.
func (s *QueryService) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.TopK
	}
	minScore := s.cfg.SearchThreshold
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.ErrNotReady
	}

	results, err := s.retrieve(ctx, snap, query, limit, minScore)
	if err != nil {
		return nil, err
	}
	return &SearchResult{IndexID: snap.Manifest().ID, Results: results}, nil
}

// snapshot returns the ready snapshot, or nil when none is searchable.
func (s *QueryService) snapshot(ctx context.Context) (vectorstore.Snapshot, error) {
	snap, err := s.store.Current(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	if snap == nil || !snap.Manifest().Ready() {
		return nil, nil
	}
	return snap, nil
}

func (s *QueryService) retrieve(ctx context.Context, snap vectorstore.Snapshot, query string, limit int, minScore float32) ([]domain.ScoredChunk, error) {
	manifest := snap.Manifest()
	if manifest.EmbeddingModel != s.embedder.Model() {
		return nil, domain.Wrap(domain.ErrConfigurationMismatch,
			fmt.Errorf("index %s was built with %q, embedder is %q", manifest.ID, manifest.EmbeddingModel, s.embedder.Model()))
	}

	var vec []float32
	err := retry.Do(ctx, s.cfg.EmbedRetry, "embed query", func(callCtx context.Context) error {
		v, err := s.embedder.GenerateEmbedding(callCtx, query)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.ErrProvider, fmt.Errorf("embed query: %w", err))
	}
	if len(vec) != manifest.Dimension {
		return nil, domain.Wrap(domain.ErrConfigurationMismatch,
			fmt.Errorf("query embedding has dimension %d, index %s has %d", len(vec), manifest.ID, manifest.Dimension))
	}

	results, err := snap.Search(ctx, vec, limit, minScore)
	if err != nil {
		return nil, err
	}
	return results, nil
}
