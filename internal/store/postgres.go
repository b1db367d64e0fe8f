package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"hr-bulk-import/internal/models"
)

// PostgresStore wraps pgxpool for durable job records.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore creates a pooled connection to Postgres.
func NewPostgresStore(ctx context.Context, dsn string, ttl time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Put upserts the job unless the stored row is already finalized.
func (s *PostgresStore) Put(ctx context.Context, job models.ImportJob) error {
	errs := job.Errors
	if errs == nil {
		errs = []models.RowError{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal row errors: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, import_type, source_name, status, total_rows, success_rows, error_rows, started_at, completed_at, errors, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_rows = EXCLUDED.total_rows,
			success_rows = EXCLUDED.success_rows,
			error_rows = EXCLUDED.error_rows,
			completed_at = EXCLUDED.completed_at,
			errors = EXCLUDED.errors,
			updated_at = NOW()
		WHERE import_jobs.completed_at IS NULL
	`, job.ID, job.ImportType, job.SourceName, job.Status, job.TotalRows, job.SuccessRows, job.ErrorRows,
		job.StartedAt, job.CompletedAt, errorsJSON)
	if err != nil {
		return fmt.Errorf("upsert import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobFinalized
	}
	return nil
}

const selectJob = `
	SELECT id, import_type, source_name, status, total_rows, success_rows, error_rows, started_at, completed_at, errors
	FROM import_jobs`

// Get fetches a job by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (models.ImportJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ImportJob{}, ErrNotFound
	}
	return job, err
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]models.ImportJob, error) {
	rows, err := s.pool.Query(ctx, selectJob+` ORDER BY started_at DESC, id LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	out := []models.ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// DeleteExpired removes terminal jobs completed before now minus the retention.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM import_jobs WHERE completed_at IS NOT NULL AND completed_at < $1
	`, now.Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (models.ImportJob, error) {
	var job models.ImportJob
	var completed pgtype.Timestamptz
	var errorsJSON []byte

	if err := row.Scan(&job.ID, &job.ImportType, &job.SourceName, &job.Status, &job.TotalRows, &job.SuccessRows,
		&job.ErrorRows, &job.StartedAt, &completed, &errorsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ImportJob{}, err
		}
		return models.ImportJob{}, fmt.Errorf("scan import job: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	job.Errors = []models.RowError{}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
			return models.ImportJob{}, fmt.Errorf("unmarshal row errors: %w", err)
		}
	}
	return job, nil
}
