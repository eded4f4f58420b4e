package cache

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

// SQLiteStore persists entries in a SQLite database so the cache survives
// restarts of a single instance.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// cache table exists.
func NewSQLiteStore(dbPath string, retention time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite cache: %w", err)
	}

	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS cache (
		key        TEXT PRIMARY KEY,
		payload    TEXT    NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache (expires_at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &SQLiteStore{db: db, retention: retention, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.read(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.Expired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *SQLiteStore) GetIgnoringExpiry(ctx context.Context, key string) (Entry, bool, error) {
	return s.read(ctx, key)
}

func (s *SQLiteStore) read(ctx context.Context, key string) (Entry, bool, error) {
	var (
		payload            string
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, created_at, expires_at FROM cache WHERE key = ?", key,
	).Scan(&payload, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w for %s: %w", model.ErrCacheRead, key, err)
	}

	var jobs []model.Job
	if err := json.Unmarshal([]byte(payload), &jobs); err != nil {
		return Entry{}, false, fmt.Errorf("%w for %s: decoding payload: %w", model.ErrCacheRead, key, err)
	}
	return Entry{
		Key:       key,
		Jobs:      jobs,
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
	}, true, nil
}

// Put upserts the entry in a single statement.
func (s *SQLiteStore) Put(ctx context.Context, key string, jobs []model.Job, ttl time.Duration) error {
	if jobs == nil {
		jobs = []model.Job{}
	}
	payload, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("%w for %s: encoding payload: %w", model.ErrCacheWrite, key, err)
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache (key, payload, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, string(payload), now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w for %s: %w", model.ErrCacheWrite, key, err)
	}
	return nil
}

func (s *SQLiteStore) Invalidate(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: invalidating %s: %w", model.ErrCacheWrite, key, err)
	}
	return nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE expires_at <= ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: sweeping expired entries: %w", model.ErrCacheWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting swept entries: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
