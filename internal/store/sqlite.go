package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_records (
    namespace    TEXT NOT NULL,
    key          TEXT NOT NULL,
    value        BLOB NOT NULL,
    content_type TEXT NOT NULL,
    updated_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLiteStore keeps records in a local SQLite database file.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	log       *zap.Logger
}

// NewSQLite opens (and if needed creates) the database at path. ":memory:"
// is accepted for tests.
func NewSQLite(ctx context.Context, path, namespace string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		namespace: namespace,
		log:       logger.Named("store").With(zap.String("backend", "sqlite")),
	}, nil
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_records WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (namespace, key, value, content_type, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			content_type = excluded.content_type,
			updated_at = excluded.updated_at
	`, s.namespace, key, value, contentType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}
	s.log.Debug("Record stored.", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// ContentType returns the stored content type of a record.
func (s *SQLiteStore) ContentType(ctx context.Context, key string) (string, error) {
	var ct string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_type FROM kv_records WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&ct)
	if err != nil {
		return "", fmt.Errorf("failed to read content type of %q: %w", key, err)
	}
	return ct, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
