package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kenjobs/jobsync/internal/model"
)

const sqliteSchema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS companies (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	logo_url TEXT
);
CREATE TABLE IF NOT EXISTS jobs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id   INTEGER REFERENCES companies (id),
	title        TEXT    NOT NULL,
	description  TEXT    NOT NULL DEFAULT '',
	location     TEXT    NOT NULL DEFAULT '',
	job_type     TEXT    NOT NULL DEFAULT '',
	salary_range TEXT    NOT NULL DEFAULT '',
	is_open      INTEGER NOT NULL DEFAULT 1,
	created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE TABLE IF NOT EXISTS saved_jobs (
	user_id  TEXT    NOT NULL,
	job_id   TEXT    NOT NULL,
	job      TEXT    NOT NULL,
	saved_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, job_id)
);`

// SQLiteStore reads internal jobs and saved jobs from a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the companies, jobs and saved_jobs tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// ListOpenJobs returns open jobs whose title or description contains query
// and whose location contains location, newest first. Matching is
// case-insensitive; empty arguments match everything.
func (s *SQLiteStore) ListOpenJobs(ctx context.Context, query, location string) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id, j.title, j.description, j.location, j.job_type, j.salary_range,
		       COALESCE(c.name, ''), COALESCE(c.logo_url, ''), j.created_at
		FROM jobs j
		LEFT JOIN companies c ON c.id = j.company_id
		WHERE j.is_open = 1
		  AND (lower(j.title) LIKE ?1 OR lower(j.description) LIKE ?1)
		  AND lower(j.location) LIKE ?2
		ORDER BY j.created_at DESC, j.id DESC`,
		likePattern(query), likePattern(location),
	)
	if err != nil {
		return nil, fmt.Errorf("listing open jobs for %q: %w", query, err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var (
			r       internalRow
			created int64
		)
		if err := rows.Scan(&r.id, &r.title, &r.description, &r.location, &r.jobType,
			&r.salaryRange, &r.company, &r.logo, &created); err != nil {
			return nil, fmt.Errorf("scanning open job: %w", err)
		}
		r.createdAt = time.Unix(created, 0)
		jobs = append(jobs, r.job())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing open jobs for %q: %w", query, err)
	}
	return jobs, nil
}

// ToggleSaved saves or unsaves job in one transaction.
func (s *SQLiteStore) ToggleSaved(ctx context.Context, userID string, job model.Job) (bool, error) {
	if err := validateSave(userID, job); err != nil {
		return false, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encoding job %s: %w", job.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM saved_jobs WHERE user_id = ? AND job_id = ?", userID, job.ID)
	if err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	if removed == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO saved_jobs (user_id, job_id, job, saved_at) VALUES (?, ?, ?, ?)",
			userID, job.ID, string(payload), s.now().UnixNano(),
		)
		if err != nil {
			return false, fmt.Errorf("saving job %s: %w", job.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggling saved job %s: %w", job.ID, err)
	}
	return removed == 0, nil
}

func (s *SQLiteStore) ListSaved(ctx context.Context, userID string) ([]SavedJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, job, saved_at FROM saved_jobs WHERE user_id = ? ORDER BY saved_at DESC, rowid DESC",
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
			payload string
			savedAt int64
		)
		if err := rows.Scan(&sj.JobID, &payload, &savedAt); err != nil {
			return nil, fmt.Errorf("scanning saved job: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &sj.Job); err != nil {
			return nil, fmt.Errorf("decoding saved job %s: %w", sj.JobID, err)
		}
		sj.UserID = userID
		sj.SavedAt = time.Unix(0, savedAt).UTC()
		saved = append(saved, sj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing saved jobs for %s: %w", userID, err)
	}
	return saved, nil
}

// DeleteSaved removes a saved job. Deleting a job that is not saved is a no-op.
func (s *SQLiteStore) DeleteSaved(ctx context.Context, userID, jobID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM saved_jobs WHERE user_id = ? AND job_id = ?", userID, jobID)
	if err != nil {
		return fmt.Errorf("deleting saved job %s: %w", jobID, err)
	}
	return nil
}

func (s *SQLiteStore) IsSaved(ctx context.Context, userID, jobID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM saved_jobs WHERE user_id = ? AND job_id = ?", userID, jobID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking saved status for %s: %w", jobID, err)
	}
	return true, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
