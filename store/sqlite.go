package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists pipeline state in a local SQLite database. Lists and
// hashes are modeled as rows keyed by (key, pos) and (key, field); plain
// values carry an optional expiry checked on read.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on one conn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_values (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS kv_lists (
			key TEXT NOT NULL,
			pos INTEGER NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (key, pos)
		);

		CREATE TABLE IF NOT EXISTS kv_hashes (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (key, field)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	var expiresAt sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_values WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	if expiresAt.Valid && time.Now().Unix() > expiresAt.Int64 {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_values (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range []string{
		`DELETE FROM kv_values WHERE key = ?`,
		`DELETE FROM kv_lists WHERE key = ?`,
		`DELETE FROM kv_hashes WHERE key = ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListAppend(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("list append %q: %w", key, err)
	}
	defer tx.Rollback()

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(pos)+1, 0) FROM kv_lists WHERE key = ?`, key)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("list append %q: %w", key, err)
	}
	for i, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_lists (key, pos, value) VALUES (?, ?, ?)`,
			key, next+int64(i), v); err != nil {
			return fmt.Errorf("list append %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTrim(ctx context.Context, key string, maxLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxLen < 0 {
		maxLen = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_lists WHERE key = ? AND pos NOT IN (
			SELECT pos FROM kv_lists WHERE key = ? ORDER BY pos DESC LIMIT ?
		)`, key, key, maxLen)
	if err != nil {
		return fmt.Errorf("list trim %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.listLenLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	lo, hi := normalizeRange(start, stop, n)
	if lo > hi || n == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM kv_lists WHERE key = ? ORDER BY pos ASC LIMIT ? OFFSET ?`,
		key, hi-lo+1, lo)
	if err != nil {
		return nil, fmt.Errorf("list range %q: %w", key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("list range %q: %w", key, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListLen(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLenLocked(ctx, key)
}

func (s *SQLiteStore) listLenLocked(ctx context.Context, key string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_lists WHERE key = ?`, key)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("list len %q: %w", key, err)
	}
	return n, nil
}

func (s *SQLiteStore) HashGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_hashes WHERE key = ? AND field = ?`, key, field)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("hash get %q.%q: %w", key, field, err)
	}
	return value, nil
}

func (s *SQLiteStore) HashSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_hashes (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
		key, field, value)
	if err != nil {
		return fmt.Errorf("hash set %q.%q: %w", key, field, err)
	}
	return nil
}

func (s *SQLiteStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM kv_hashes WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("hash get all %q: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("hash get all %q: %w", key, err)
		}
		out[field] = value
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HashDelete(ctx context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_hashes WHERE key = ? AND field = ?`, key, field)
	if err != nil {
		return fmt.Errorf("hash delete %q.%q: %w", key, field, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
