package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kenjobs/jobsync/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id       BIGSERIAL PRIMARY KEY,
	name     TEXT NOT NULL,
	logo_url TEXT
);
CREATE TABLE IF NOT EXISTS jobs (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT REFERENCES companies (id),
	title        TEXT        NOT NULL,
	description  TEXT        NOT NULL DEFAULT '',
	location     TEXT        NOT NULL DEFAULT '',
	job_type     TEXT        NOT NULL DEFAULT '',
	salary_range TEXT        NOT NULL DEFAULT '',
	is_open      BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS saved_jobs (
	user_id  TEXT        NOT NULL,
	job_id   TEXT        NOT NULL,
	job      JSONB       NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, job_id)
);`

// PostgresStore reads internal jobs and saved jobs from a shared Postgres
// database, for deployments running more than one instance.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps pool and ensures the tables exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ListOpenJobs(ctx context.Context, query, location string) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT j.id, j.title, j.description, j.location, j.job_type, j.salary_range,
		       COALESCE(c.name, ''), COALESCE(c.logo_url, ''), j.created_at
		FROM jobs j
		LEFT JOIN companies c ON c.id = j.company_id
		WHERE j.is_open
		  AND (j.title ILIKE $1 OR j.description ILIKE $1)
		  AND j.location ILIKE $2
		ORDER BY j.created_at DESC, j.id DESC`,
		likePattern(query), likePattern(location),
	)
	if err != nil {
		return nil, fmt.Errorf("listing open jobs for %q: %w", query, err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var r internalRow
		if err := rows.Scan(&r.id, &r.title, &r.description, &r.location, &r.jobType,
			&r.salaryRange, &r.company, &r.logo, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scanning open job: %w", err)
		}
		jobs = append(jobs, r.job())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing open jobs for %q: %w", query, err)
	}
	return jobs, nil
}

func (s *PostgresStore) ToggleSaved(ctx context.Context, userID string, job model.Job) (bool, error) {
	if err := validateSave(userID, job); err != nil {
		return false, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encoding job %s: %w", job.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM saved_jobs WHERE user_id = $1 AND job_id = $2`, userID, job.ID)
	if err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	saved := tag.RowsAffected() == 0
	if saved {
		_, err = tx.Exec(ctx,
			`INSERT INTO saved_jobs (user_id, job_id, job) VALUES ($1, $2, $3)`,
			userID, job.ID, payload,
		)
		if err != nil {
			return false, fmt.Errorf("saving job %s: %w", job.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	return saved, nil
}

func (s *PostgresStore) ListSaved(ctx context.Context, userID string) ([]SavedJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, job, saved_at FROM saved_jobs WHERE user_id = $1 ORDER BY saved_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing saved jobs for %s: %w", userID, err)
	}
	defer rows.Close()

	saved := make([]SavedJob, 0)
	for rows.Next() {
		var (
			sj      SavedJob
			payload []byte
			savedAt time.Time
		)
		if err := rows.Scan(&sj.JobID, &payload, &savedAt); err != nil {
			return nil, fmt.Errorf("scanning saved job: %w", err)
		}
		if err := json.Unmarshal(payload, &sj.Job); err != nil {
			return nil, fmt.Errorf("decoding saved job %s: %w", sj.JobID, err)
		}
		sj.UserID = userID
		sj.SavedAt = savedAt.UTC()
		saved = append(saved, sj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing saved jobs for %s: %w", userID, err)
	}
	return saved, nil
}

func (s *PostgresStore) DeleteSaved(ctx context.Context, userID, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM saved_jobs WHERE user_id = $1 AND job_id = $2`, userID, jobID); err != nil {
		return fmt.Errorf("deleting saved job %s: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) IsSaved(ctx context.Context, userID, jobID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM saved_jobs WHERE user_id = $1 AND job_id = $2`, userID, jobID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking saved status for %s: %w", jobID, err)
	}
	return true, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
