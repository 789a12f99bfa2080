package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists pipeline state in Postgres for deployments where
// multiple processes share the learned baseline and weights. Schema mirrors
// SQLiteStore; every operation is a single statement or a short transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the given DSN and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_values (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at BIGINT
		);

		CREATE TABLE IF NOT EXISTS kv_lists (
			key TEXT NOT NULL,
			pos BIGSERIAL,
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

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_values WHERE key = $1`, key)
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

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_values (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	for _, q := range []string{
		`DELETE FROM kv_values WHERE key = $1`,
		`DELETE FROM kv_lists WHERE key = $1`,
		`DELETE FROM kv_hashes WHERE key = $1`,
	} {
		if _, err := s.db.ExecContext(ctx, q, key); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListAppend(ctx context.Context, key string, values ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("list append %q: %w", key, err)
	}
	defer tx.Rollback()

	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_lists (key, value) VALUES ($1, $2)`, key, v); err != nil {
			return fmt.Errorf("list append %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListTrim(ctx context.Context, key string, maxLen int) error {
	if maxLen < 0 {
		maxLen = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_lists WHERE key = $1 AND pos NOT IN (
			SELECT pos FROM kv_lists WHERE key = $1 ORDER BY pos DESC LIMIT $2
		)`, key, maxLen)
	if err != nil {
		return fmt.Errorf("list trim %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	n, err := s.ListLen(ctx, key)
	if err != nil {
		return nil, err
	}
	lo, hi := normalizeRange(start, stop, n)
	if lo > hi || n == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM kv_lists WHERE key = $1 ORDER BY pos ASC LIMIT $2 OFFSET $3`,
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

func (s *PostgresStore) ListLen(ctx context.Context, key string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_lists WHERE key = $1`, key)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("list len %q: %w", key, err)
	}
	return n, nil
}

func (s *PostgresStore) HashGet(ctx context.Context, key, field string) (string, error) {
	var value string
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_hashes WHERE key = $1 AND field = $2`, key, field)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("hash get %q.%q: %w", key, field, err)
	}
	return value, nil
}

func (s *PostgresStore) HashSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3)
		ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`,
		key, field, value)
	if err != nil {
		return fmt.Errorf("hash set %q.%q: %w", key, field, err)
	}
	return nil
}

func (s *PostgresStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM kv_hashes WHERE key = $1`, key)
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

func (s *PostgresStore) HashDelete(ctx context.Context, key, field string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_hashes WHERE key = $1 AND field = $2`, key, field)
	if err != nil {
		return fmt.Errorf("hash delete %q.%q: %w", key, field, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
