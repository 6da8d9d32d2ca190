// Package sqlitekv is the sqlite-backed kv backend: a single-file shared
// store suitable for one host or CI. The schema is one table keyed by
// (key, field).
//
// Import this package with a blank identifier to register the backend:
//
//	import _ "github.com/weftlabs/weft/internal/kv/sqlitekv"
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/weftlabs/weft/internal/kv"
)

func init() {
	kv.Register("sqlite", func(cfg kv.Config, logger *slog.Logger) (kv.Store, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite kv backend requires a path")
		}
		return Open(cfg.Path, logger)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (key, field)
)`

// Store is a sqlite-backed field-addressed mapping.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the kv database at path. Use ":memory:"
// for a throwaway in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := path
	memory := path == ":memory:"
	if memory {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite kv store: %w", err)
	}
	if memory {
		// An in-memory database exists per connection; keep the pool at one
		// so every query sees the same database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite kv store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize kv schema: %w", err)
	}

	logger.Debug("opened sqlite kv store", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND field = ?`, key, field,
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
		`INSERT INTO kv (key, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
		key, field, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set kv field: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key, field string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND field = ?`, key, field,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv field: %w", err)
	}
	return nil
}

func (s *Store) All(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM kv WHERE key = ? ORDER BY field`, key,
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
