package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/vectorstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkBatchSize = 500

// IndexStore keeps index generations in Postgres with pgvector. Exactly one
// generation is active; Replace writes a new generation and flips the active
// pointer in the same transaction. The previously active generation is kept
// until the next Replace so snapshots taken before the flip stay searchable.
type IndexStore struct {
	pool *pgxpool.Pool
}

func NewIndexStore(pool *pgxpool.Pool) *IndexStore {
	return &IndexStore{pool: pool}
}

func (s *IndexStore) Current(ctx context.Context) (vectorstore.Snapshot, error) {
	m, err := activeManifest(ctx, s.pool)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pgSnapshot{db: s.pool, manifest: m}, nil
}

func (s *IndexStore) Replace(ctx context.Context, manifest *domain.IndexManifest, chunks []domain.Chunk) error {
	if err := vectorstore.ValidateIndex(manifest, chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keep := []string{manifest.ID}
	var previous string
	err = tx.QueryRow(ctx, `SELECT generation_id::text FROM active_index FOR UPDATE`).Scan(&previous)
	switch {
	case err == nil:
		keep = append(keep, previous)
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to read active index generation: %w", err)
	}

	createdAt := manifest.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO index_generations
			(id, embedding_model, dimension, chunk_max_chars, chunk_min_chars, chunk_overlap, unit_mode,
			 source, source_fingerprint, unit_count, chunk_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		manifest.ID, manifest.EmbeddingModel, manifest.Dimension,
		manifest.ChunkConfig.MaxChars, manifest.ChunkConfig.MinChars, manifest.ChunkConfig.Overlap,
		string(manifest.UnitMode), manifest.Source, manifest.SourceFingerprint,
		manifest.UnitCount, manifest.ChunkCount, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert index generation: %w", err)
	}

	if err := insertChunks(ctx, tx, manifest.ID, chunks); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO active_index (singleton, generation_id, activated_at)
		 VALUES (TRUE, $1, NOW())
		 ON CONFLICT (singleton) DO UPDATE SET generation_id = EXCLUDED.generation_id, activated_at = EXCLUDED.activated_at`,
		manifest.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to activate index generation: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM index_generations WHERE id::text <> ALL($1::text[])`, keep); err != nil {
		return fmt.Errorf("failed to drop old index generations: %w", err)
	}

	return tx.Commit(ctx)
}

func insertChunks(ctx context.Context, db dbtx, generationID string, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += chunkBatchSize {
		end := start + chunkBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			c := chunks[i]
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return err
			}
			batch.Queue(
				`INSERT INTO index_chunks
					(generation_id, seq, id, unit_index, chunk_index, chunk_count, content, metadata, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				generationID, i, c.ID, c.UnitIndex, c.ChunkIndex, c.ChunkCount, c.Content, string(meta),
				pgvector.NewVector(c.Embedding),
			)
		}

		br := db.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert chunk %s: %w", chunks[i].ID, err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (s *IndexStore) Clear(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM active_index`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM index_generations`); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (s *IndexStore) Close() error {
	return nil
}

func activeManifest(ctx context.Context, db dbtx) (*domain.IndexManifest, error) {
	var m domain.IndexManifest
	var unitMode string
	err := db.QueryRow(ctx,
		`SELECT g.id::text, g.embedding_model, g.dimension, g.chunk_max_chars, g.chunk_min_chars, g.chunk_overlap,
		        g.unit_mode, g.source, g.source_fingerprint, g.unit_count, g.chunk_count, g.created_at
		 FROM active_index a
		 JOIN index_generations g ON g.id = a.generation_id`,
	).Scan(&m.ID, &m.EmbeddingModel, &m.Dimension,
		&m.ChunkConfig.MaxChars, &m.ChunkConfig.MinChars, &m.ChunkConfig.Overlap,
		&unitMode, &m.Source, &m.SourceFingerprint, &m.UnitCount, &m.ChunkCount, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexNotFound
		}
		return nil, err
	}
	m.UnitMode = domain.UnitMode(unitMode)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// pgSnapshot searches one generation. It keeps answering after one Replace;
// a generation two rebuilds old has been dropped and yields no rows.
type pgSnapshot struct {
	db       dbtx
	manifest *domain.IndexManifest
}

func (s *pgSnapshot) Manifest() *domain.IndexManifest {
	m := *s.manifest
	return &m
}

func (s *pgSnapshot) Search(ctx context.Context, query []float32, limit int, minScore float32) ([]domain.ScoredChunk, error) {
	if len(query) != s.manifest.Dimension {
		return nil, domain.Wrap(domain.ErrConfigurationMismatch,
			fmt.Errorf("query dimension %d, index dimension %d", len(query), s.manifest.Dimension))
	}
	if limit <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, unit_index, chunk_index, chunk_count, content, metadata, score
		 FROM (
			SELECT id, unit_index, chunk_index, chunk_count, content, metadata, seq,
			       1 - (embedding <=> $2) AS score
			FROM index_chunks
			WHERE generation_id = $1
		 ) ranked
		 WHERE score >= $3
		 ORDER BY score DESC, seq ASC
		 LIMIT $4`,
		s.manifest.ID, pgvector.NewVector(query), minScore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var (
			c     domain.Chunk
			meta  []byte
			score float64
		)
		if err := rows.Scan(&c.ID, &c.UnitIndex, &c.ChunkIndex, &c.ChunkCount, &c.Content, &meta, &score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: float32(score)})
	}
	return results, rows.Err()
}
