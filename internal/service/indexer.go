package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/chunking"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/extract"
	"github.com/cloo-solutions/sheetrag/internal/fingerprint"
	"github.com/cloo-solutions/sheetrag/internal/retry"
	"github.com/cloo-solutions/sheetrag/internal/telemetry"
	"github.com/cloo-solutions/sheetrag/internal/vectorstore"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Embedder generates embeddings for chunk and query text
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// UnitSource walks a workbook into document units
type UnitSource interface {
	Walk(ctx context.Context, path string, fn extract.UnitFunc) (extract.Stats, error)
	Mode() domain.UnitMode
}

// IndexJobRecorder persists rebuild history
type IndexJobRecorder interface {
	Create(ctx context.Context, job *domain.IndexJob) error
	Update(ctx context.Context, job *domain.IndexJob) error
}

// IndexConfig tunes the indexing pipeline
type IndexConfig struct {
	Chunk domain.ChunkConfig
	// Dimension is the expected embedding size; zero accepts whatever the
	// first embedding returns.
	Dimension        int
	EmbedRetry       retry.Policy
	EmbedConcurrency int
}

// DefaultIndexConfig returns the indexing defaults.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Chunk:            domain.DefaultChunkConfig(),
		EmbedRetry:       retry.DefaultPolicy(),
		EmbedConcurrency: 4,
	}
}

// IndexState is a point-in-time view of the indexer for status reporting
type IndexState struct {
	Running      bool
	CurrentJob   *domain.IndexJob
	LastJob      *domain.IndexJob
	LastError    string
	LastManifest *domain.IndexManifest
}

// IndexService builds the vector index from a workbook. At most one rebuild
// runs at a time; the previous index keeps serving until the new one is
// stored.
type IndexService struct {
	source   UnitSource
	embedder Embedder
	store    vectorstore.Store
	recorder IndexJobRecorder
	cfg      IndexConfig
	now      func() time.Time

	mu    sync.Mutex
	state IndexState
}

// NewIndexService creates a new IndexService instance
func NewIndexService(source UnitSource, embedder Embedder, store vectorstore.Store, cfg IndexConfig) *IndexService {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	return &IndexService{
		source:   source,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithRecorder persists job history through r.
func (s *IndexService) WithRecorder(r IndexJobRecorder) *IndexService {
	s.recorder = r
	return s
}

// State returns a copy of the current indexer state.
func (s *IndexService) State() IndexState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if st.CurrentJob != nil {
		j := *st.CurrentJob
		st.CurrentJob = &j
	}
	if st.LastJob != nil {
		j := *st.LastJob
		st.LastJob = &j
	}
	return st
}

// Begin reserves the indexer for a new rebuild and returns its pending job.
// It fails with ErrIndexingInProgress while another rebuild holds it.
func (s *IndexService) Begin(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error) {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return nil, domain.ErrIndexingInProgress
	}
	job := domain.NewIndexJob(uuid.NewString(), trigger, s.now())
	s.state.Running = true
	s.state.CurrentJob = job
	s.mu.Unlock()

	s.record(ctx, job, true)
	return job, nil
}

// Abandon releases a reservation whose job will never run.
func (s *IndexService) Abandon(ctx context.Context, job *domain.IndexJob, reason error) {
	s.finish(ctx, job, nil, reason)
}

// Rebuild runs a full rebuild of the index from the workbook at path.
func (s *IndexService) Rebuild(ctx context.Context, path string, trigger domain.IndexTrigger) (*domain.IndexManifest, error) {
	job, err := s.Begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, job, path)
}

// Run executes a job obtained from Begin. The previous index is left in
// place when any step fails.
func (s *IndexService) Run(ctx context.Context, job *domain.IndexJob, path string) (*domain.IndexManifest, error) {
	ctx, span := telemetry.StartSpan(ctx, "index.rebuild", telemetry.SpanAttributes{
		Workbook:  path,
		Trigger:   string(job.Trigger),
		Operation: "rebuild",
	})
	defer span.End()

	s.mu.Lock()
	job.Start(s.now())
	s.mu.Unlock()
	s.record(ctx, job, false)
	log.Printf("indexer: job %s (%s) started for %s", job.ID, job.Trigger, path)

	manifest, err := s.build(ctx, path)
	s.finish(ctx, job, manifest, err)
	if err != nil {
		span.SetError(err)
		log.Printf("indexer: job %s failed: %v", job.ID, err)
		return nil, err
	}

	span.SetData("index.units", manifest.UnitCount)
	span.SetData("index.chunks", manifest.ChunkCount)
	span.SetStatus(sentry.SpanStatusOK)
	log.Printf("indexer: job %s built index %s (%d units, %d chunks)", job.ID, manifest.ID, manifest.UnitCount, manifest.ChunkCount)
	return manifest, nil
}

// Clear deletes the persisted index. It refuses while a rebuild runs.
func (s *IndexService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Running {
		return domain.ErrIndexingInProgress
	}
	if err := s.store.Clear(ctx); err != nil {
		return domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	s.state.LastManifest = nil
	return nil
}

// NeedsRebuild reports whether the workbook at path differs from what the
// current index was built from, or the index was built with a different
// model or chunking.
func (s *IndexService) NeedsRebuild(ctx context.Context, path string) (bool, string, error) {
	fp, err := fingerprint.File(path)
	if err != nil {
		return false, "", err
	}
	snap, err := s.store.Current(ctx)
	if err != nil {
		return false, fp, err
	}
	if snap == nil {
		return true, fp, nil
	}
	m := snap.Manifest()
	switch {
	case !m.Ready():
		return true, fp, nil
	case m.SourceFingerprint != fp:
		return true, fp, nil
	case m.EmbeddingModel != s.embedder.Model():
		return true, fp, nil
	case m.ChunkConfig != s.cfg.Chunk:
		return true, fp, nil
	case m.UnitMode != s.source.Mode():
		return true, fp, nil
	}
	return false, fp, nil
}

func (s *IndexService) build(ctx context.Context, path string) (*domain.IndexManifest, error) {
	if err := s.cfg.Chunk.Validate(); err != nil {
		return nil, err
	}

	fp, err := fingerprint.File(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtraction, fmt.Errorf("read workbook: %w", err))
	}

	var chunks []domain.Chunk
	units := 0
	stats, err := s.source.Walk(ctx, path, func(u domain.DocumentUnit) error {
		chunks = append(chunks, chunking.SplitUnit(units, u, s.cfg.Chunk)...)
		units++
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The manifest must describe the bytes that were walked.
	after, err := fingerprint.File(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtraction, fmt.Errorf("read workbook: %w", err))
	}
	if after != fp {
		return nil, domain.Wrap(domain.ErrExtraction, fmt.Errorf("workbook %s changed during rebuild", path))
	}

	if len(chunks) == 0 {
		return nil, domain.Wrap(domain.ErrExtraction, fmt.Errorf("workbook %s has no data rows in %d sheets", path, stats.Sheets))
	}

	dim, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	manifest := &domain.IndexManifest{
		ID:                uuid.NewString(),
		EmbeddingModel:    s.embedder.Model(),
		Dimension:         dim,
		ChunkConfig:       s.cfg.Chunk,
		UnitMode:          s.source.Mode(),
		Source:            path,
		SourceFingerprint: fp,
		UnitCount:         units,
		ChunkCount:        len(chunks),
		CreatedAt:         s.now(),
	}

	if err := s.store.Replace(ctx, manifest, chunks); err != nil {
		return nil, domain.Wrap(domain.ErrIndexing, fmt.Errorf("store index: %w", err))
	}
	return manifest, nil
}

// embedChunks fills in every chunk embedding and returns the common
// dimension.
func (s *IndexService) embedChunks(ctx context.Context, chunks []domain.Chunk) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)

	for i := range chunks {
		c := &chunks[i]
		g.Go(func() error {
			var vec []float32
			err := retry.Do(gctx, s.cfg.EmbedRetry, "embed chunk", func(callCtx context.Context) error {
				v, err := s.embedder.GenerateEmbedding(callCtx, c.Content)
				if err != nil {
					return err
				}
				vec = v
				return nil
			})
			if err != nil {
				return domain.Wrap(domain.ErrIndexing, fmt.Errorf("embed chunk %s: %w", c.ID, err))
			}
			c.Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return 0, domain.Wrap(domain.ErrIndexing, ctxErr)
		}
		return 0, err
	}

	dim := s.cfg.Dimension
	if dim <= 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return 0, domain.Wrap(domain.ErrIndexing,
				fmt.Errorf("chunk %s embedding has dimension %d, expected %d", c.ID, len(c.Embedding), dim))
		}
	}
	return dim, nil
}

func (s *IndexService) finish(ctx context.Context, job *domain.IndexJob, manifest *domain.IndexManifest, err error) {
	s.mu.Lock()
	if err != nil {
		job.Fail(err, s.now())
		s.state.LastError = err.Error()
	} else {
		job.Complete(manifest.ID, s.now())
		s.state.LastError = ""
		m := *manifest
		s.state.LastManifest = &m
	}
	s.state.Running = false
	s.state.CurrentJob = nil
	j := *job
	s.state.LastJob = &j
	s.mu.Unlock()

	s.record(ctx, job, false)
}

func (s *IndexService) record(ctx context.Context, job *domain.IndexJob, create bool) {
	if s.recorder == nil {
		return
	}
	s.mu.Lock()
	j := *job
	s.mu.Unlock()

	// history writes outlive a cancelled rebuild
	ctx = context.WithoutCancel(ctx)
	var err error
	if create {
		err = s.recorder.Create(ctx, &j)
	} else {
		err = s.recorder.Update(ctx, &j)
	}
	if err != nil {
		log.Printf("indexer: failed to record job %s: %v", job.ID, err)
	}
}
