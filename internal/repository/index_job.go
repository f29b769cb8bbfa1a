package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexJobRepository records rebuild history for the postgres backend.
type IndexJobRepository struct {
	db dbtx
}

func NewIndexJobRepository(pool *pgxpool.Pool) *IndexJobRepository {
	return &IndexJobRepository{db: pool}
}

const (
	indexJobColumns = `id, triggered_by, status, error, manifest_id, created_at, started_at, finished_at`
	indexJobSelect  = `id::text, triggered_by, status, error, manifest_id::text, created_at, started_at, finished_at`
)

func (r *IndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	if err := domain.ValidateIndexJob(job); err != nil {
		return domain.Wrap(domain.ErrMissingRequiredField, err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_jobs (`+indexJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Trigger, job.Status, nullableString(job.Error), nullableString(job.ManifestID),
		job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	return err
}

func (r *IndexJobRepository) Update(ctx context.Context, job *domain.IndexJob) error {
	if err := domain.ValidateIndexJob(job); err != nil {
		return domain.Wrap(domain.ErrMissingRequiredField, err)
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs
		 SET status = $1, error = $2, manifest_id = $3, started_at = $4, finished_at = $5
		 WHERE id = $6`,
		job.Status, nullableString(job.Error), nullableString(job.ManifestID), job.StartedAt, job.FinishedAt, job.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func (r *IndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+indexJobSelect+` FROM index_jobs WHERE id = $1`, id)
	job, err := scanIndexJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListRecent returns the newest jobs first. When after is set, only jobs
// older than the cursor position are returned.
func (r *IndexJobRepository) ListRecent(ctx context.Context, after *pagination.Cursor, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+indexJobSelect+` FROM index_jobs ORDER BY created_at DESC, id DESC LIMIT $1`,
			limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+indexJobSelect+` FROM index_jobs
			 WHERE (created_at, id) < ($1, $2::uuid)
			 ORDER BY created_at DESC, id DESC LIMIT $3`,
			after.Timestamp, after.LastID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IndexJob
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailInterrupted marks jobs left pending or processing by a previous
// process as failed and returns how many were updated.
func (r *IndexJobRepository) FailInterrupted(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs
		 SET status = $1, error = $2, finished_at = $3
		 WHERE status IN ($4, $5)`,
		domain.IndexJobStatusFailed, "interrupted by restart", time.Now().UTC(),
		domain.IndexJobStatusPending, domain.IndexJobStatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanIndexJob(row pgx.Row) (*domain.IndexJob, error) {
	var job domain.IndexJob
	var errMsg, manifestID pgtype.Text
	var trigger, status string
	if err := row.Scan(&job.ID, &trigger, &status, &errMsg, &manifestID, &job.CreatedAt, &job.StartedAt, &job.FinishedAt); err != nil {
		return nil, err
	}
	job.Trigger = domain.IndexTrigger(trigger)
	job.Status = domain.IndexJobStatus(status)
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if manifestID.Valid {
		job.ManifestID = manifestID.String
	}
	return &job, nil
}
