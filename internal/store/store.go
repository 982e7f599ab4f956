package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateKVTable = `
        CREATE TABLE IF NOT EXISTS kv_records (
            namespace    TEXT        NOT NULL,
            key          TEXT        NOT NULL,
            value        BYTEA       NOT NULL,
            content_type TEXT        NOT NULL,
            updated_at   TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (namespace, key)
        );
    `
	sqlUpsertRecord = `
        INSERT INTO kv_records (namespace, key, value, content_type, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (namespace, key) DO UPDATE SET
            value = EXCLUDED.value,
            content_type = EXCLUDED.content_type,
            updated_at = EXCLUDED.updated_at;
    `
	sqlSelectRecord = `
        SELECT value FROM kv_records
        WHERE namespace = $1 AND key = $2;
    `
)

// Store is the PostgreSQL implementation of schemas.KeyValueStore. Records are
// scoped by namespace so several accounts can share one database.
type Store struct {
	pool      DBPool
	namespace string
	log       *zap.Logger
}

// New creates a new store instance, verifies the connection and makes sure
// the records table exists.
func New(ctx context.Context, pool DBPool, namespace string, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateKVTable); err != nil {
		return nil, fmt.Errorf("failed to ensure kv_records table: %w", err)
	}

	return &Store{
		pool:      pool,
		namespace: namespace,
		log:       logger.Named("store").With(zap.String("backend", "postgres")),
	}, nil
}

// GetValue loads a record. A missing record is reported as (nil, false, nil).
func (s *Store) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.pool.QueryRow(ctx, sqlSelectRecord, s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	return value, true, nil
}

// SetValue upserts a record.
func (s *Store) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	tag, err := s.pool.Exec(ctx, sqlUpsertRecord, s.namespace, key, value, contentType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}
	s.log.Debug("Record stored.", zap.String("key", key), zap.Int("bytes", len(value)), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
