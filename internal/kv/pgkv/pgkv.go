// Package pgkv is the PostgreSQL kv backend for deployments where many hosts
// share one registry.
//
// Import this package with a blank identifier to register the backend:
//
//	import _ "github.com/weftlabs/weft/internal/kv/pgkv"
package pgkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/weftlabs/weft/internal/kv"
)

func init() {
	kv.Register("postgres", func(cfg kv.Config, logger *slog.Logger) (kv.Store, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres kv backend requires a dsn")
		}
		return Open(context.Background(), cfg.DSN, logger)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS weft_kv (
    key   TEXT NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (key, field)
)`

// Store is a postgres-backed field-addressed mapping.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to postgres and ensures the kv table exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize kv schema: %w", err)
	}

	logger.Debug("opened postgres kv store")
	return &Store{db: db, logger: logger}, nil
}

// newWithDB wraps an existing connection; tests use it with a mock.
func newWithDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Get(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM weft_kv WHERE key = $1 AND field = $2`, key, field,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv field: %w", err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weft_kv (key, field, value) VALUES ($1, $2, $3)
		 ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`,
		key, field, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set kv field: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key, field string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM weft_kv WHERE key = $1 AND field = $2`, key, field,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv field: %w", err)
	}
	return nil
}

func (s *Store) All(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM weft_kv WHERE key = $1 ORDER BY field`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv fields: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("failed to scan kv row: %w", err)
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading kv rows: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
