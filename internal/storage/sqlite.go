package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements RecordStore on SQLite. Namespace expiry is emulated: an expired
// namespace is purged the next time it is touched.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// SQLiteOption configures SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer connection; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hash_fields (
		namespace TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (namespace, field)
	);

	CREATE TABLE IF NOT EXISTS namespace_expiry (
		namespace TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Backend returns "sqlite".
func (s *SQLiteStore) Backend() string {
	return BackendSQLite
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// purgeIfExpired deletes namespace when its expiry has passed.
func (s *SQLiteStore) purgeIfExpired(ctx context.Context, namespace string) error {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT expires_at FROM namespace_expiry WHERE namespace = ?", namespace).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read expiry: %w", err)
	}
	if s.now().UnixMilli() < expiresAt {
		return nil
	}
	return s.DeleteNamespace(ctx, namespace)
}

// HashSet writes field in namespace, replacing any previous value.
func (s *SQLiteStore) HashSet(ctx context.Context, namespace, field, value string) error {
	if err := s.purgeIfExpired(ctx, namespace); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hash_fields (namespace, field, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, field) DO UPDATE SET value = excluded.value`,
		namespace, field, value)
	if err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	return nil
}

// HashMultiGet reads fields from namespace, aligned with the request order.
func (s *SQLiteStore) HashMultiGet(ctx context.Context, namespace string, fields []string) ([]Entry, error) {
	if len(fields) == 0 {
		return []Entry{}, nil
	}
	if err := s.purgeIfExpired(ctx, namespace); err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, namespace)
	for _, f := range fields {
		args = append(args, f)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT field, value FROM hash_fields WHERE namespace = ? AND field IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get fields: %w", err)
	}
	defer rows.Close()
	found := make(map[string]string, len(fields))
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		found[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	entries := make([]Entry, len(fields))
	for i, f := range fields {
		if v, ok := found[f]; ok {
			entries[i] = Entry{Value: v, Found: true}
		}
	}
	return entries, nil
}

// HashGetAll reads every field of namespace.
func (s *SQLiteStore) HashGetAll(ctx context.Context, namespace string) (map[string]string, error) {
	if err := s.purgeIfExpired(ctx, namespace); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT field, value FROM hash_fields WHERE namespace = ?", namespace)
	if err != nil {
		return nil, fmt.Errorf("get all fields: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		out[field] = value
	}
	return out, rows.Err()
}

// DeleteNamespace removes every field and the expiry of namespace.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "DELETE FROM hash_fields WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("delete fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM namespace_expiry WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("delete expiry: %w", err)
	}
	return tx.Commit()
}

// Expire sets the namespace expiry. Like Redis, expiring a namespace with no fields is a no-op.
func (s *SQLiteStore) Expire(ctx context.Context, namespace string, ttl time.Duration) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hash_fields WHERE namespace = ?", namespace).Scan(&n); err != nil {
		return fmt.Errorf("count fields: %w", err)
	}
	if n == 0 {
		return nil
	}
	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO namespace_expiry (namespace, expires_at) VALUES (?, ?)
		ON CONFLICT(namespace) DO UPDATE SET expires_at = excluded.expires_at`,
		namespace, expiresAt)
	if err != nil {
		return fmt.Errorf("set expiry: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
