package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/weftlabs/weft/internal/script"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	// Enable foreign keys; file databases also get WAL and a busy timeout.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Script operations ---

// UpsertScript inserts a script row or updates the existing one by name.
func (s *SQLiteStore) UpsertScript(rec *ScriptRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	rec.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO scripts (name, file_path, raw_hash, linked_hash, description, owner, cyclic, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   file_path = excluded.file_path,
		   raw_hash = excluded.raw_hash,
		   linked_hash = excluded.linked_hash,
		   description = excluded.description,
		   owner = excluded.owner,
		   cyclic = excluded.cyclic,
		   updated_at = excluded.updated_at`,
		rec.Name, rec.FilePath, rec.RawHash, rec.LinkedHash, rec.Description, rec.Owner, rec.Cyclic, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert script: %w", err)
	}

	return nil
}

// GetScript retrieves a script row by name.
func (s *SQLiteStore) GetScript(name string) (*ScriptRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rec := &ScriptRecord{}
	var linkedHash, description, owner sql.NullString

	err := s.db.QueryRow(
		`SELECT name, file_path, raw_hash, linked_hash, description, owner, cyclic, updated_at
		 FROM scripts WHERE name = ?`,
		name,
	).Scan(&rec.Name, &rec.FilePath, &rec.RawHash, &linkedHash, &description, &owner, &rec.Cyclic, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // Not found, return nil without error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}

	if linkedHash.Valid {
		rec.LinkedHash = linkedHash.String
	}
	if description.Valid {
		rec.Description = description.String
	}
	if owner.Valid {
		rec.Owner = owner.String
	}

	return rec, nil
}

// ListScripts retrieves all script rows ordered by name.
func (s *SQLiteStore) ListScripts() ([]*ScriptRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT name, file_path, raw_hash, linked_hash, description, owner, cyclic, updated_at
		 FROM scripts ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	var recs []*ScriptRecord
	for rows.Next() {
		rec := &ScriptRecord{}
		var linkedHash, description, owner sql.NullString

		err := rows.Scan(&rec.Name, &rec.FilePath, &rec.RawHash, &linkedHash, &description, &owner, &rec.Cyclic, &rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}

		if linkedHash.Valid {
			rec.LinkedHash = linkedHash.String
		}
		if description.Valid {
			rec.Description = description.String
		}
		if owner.Valid {
			rec.Owner = owner.String
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// DeleteScript removes a script row and its call rows.
func (s *SQLiteStore) DeleteScript(name string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(`DELETE FROM scripts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}

	return nil
}

// --- Call operations ---

// ReplaceCalls sets the call rows for a script.
// This replaces any existing rows for the script.
func (s *SQLiteStore) ReplaceCalls(scriptName string, calls []CallRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM script_calls WHERE script_name = ?`, scriptName)
	if err != nil {
		return fmt.Errorf("failed to delete existing calls: %w", err)
	}

	for i, call := range calls {
		_, err = tx.Exec(
			`INSERT INTO script_calls (script_name, ordinal, target_name, mode) VALUES (?, ?, ?, ?)`,
			scriptName, i, call.Target, call.Mode.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert call: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCalls retrieves the call rows for a script in document order.
func (s *SQLiteStore) GetCalls(scriptName string) ([]CallRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT script_name, ordinal, target_name, mode FROM script_calls WHERE script_name = ? ORDER BY ordinal`,
		scriptName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var call CallRecord
		var mode string
		if err := rows.Scan(&call.ScriptName, &call.Ordinal, &call.Target, &mode); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		call.Mode = script.ParseMode(mode)
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

// --- Content hash operations ---

// SetContentHash stores the content hash for a file path.
func (s *SQLiteStore) SetContentHash(path, hash, fileType string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO content_hashes (file_path, content_hash, file_type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(file_path) DO UPDATE SET content_hash = excluded.content_hash, file_type = excluded.file_type, updated_at = excluded.updated_at`,
		path, hash, fileType, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set content hash: %w", err)
	}

	return nil
}

// GetContentHash retrieves the stored hash for a file path.
// Returns an empty string if the path has no recorded hash.
func (s *SQLiteStore) GetContentHash(path string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var hash string
	err := s.db.QueryRow(`SELECT content_hash FROM content_hashes WHERE file_path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get content hash: %w", err)
	}

	return hash, nil
}

// DeleteContentHash removes the stored hash for a file path.
func (s *SQLiteStore) DeleteContentHash(path string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(`DELETE FROM content_hashes WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete content hash: %w", err)
	}

	return nil
}

// --- Link run operations ---

// CreateLinkRun creates a new link run in the running state.
func (s *SQLiteStore) CreateLinkRun(environment string) (*LinkRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &LinkRun{
		ID:          generateID(),
		Environment: environment,
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO link_runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create link run: %w", err)
	}

	return run, nil
}

// CompleteLinkRun marks a link run as finished with the given status and stats.
func (s *SQLiteStore) CompleteLinkRun(id string, status RunStatus, errMsg string, stats RunStats) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE link_runs SET status = ?, error = ?, scripts_total = ?, static_calls = ?, dynamic_calls = ?, cyclic_scripts = ?, completed_at = ? WHERE id = ?`,
		status, errorPtr, stats.ScriptsTotal, stats.StaticCalls, stats.DynamicCalls, stats.CyclicScripts, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete link run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("link run not found: %s", id)
	}

	return nil
}

// GetLinkRun retrieves a link run by ID.
func (s *SQLiteStore) GetLinkRun(id string) (*LinkRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanLinkRun(s.db.QueryRow(
		`SELECT id, environment, status, error, scripts_total, static_calls, dynamic_calls, cyclic_scripts, started_at, completed_at
		 FROM link_runs WHERE id = ?`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("link run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link run: %w", err)
	}

	return run, nil
}

// GetLatestLinkRun retrieves the most recent link run for an environment.
func (s *SQLiteStore) GetLatestLinkRun(environment string) (*LinkRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanLinkRun(s.db.QueryRow(
		`SELECT id, environment, status, error, scripts_total, static_calls, dynamic_calls, cyclic_scripts, started_at, completed_at
		 FROM link_runs WHERE environment = ? ORDER BY started_at DESC LIMIT 1`,
		environment,
	))
	if err == sql.ErrNoRows {
		return nil, nil // No runs found, return nil without error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest link run: %w", err)
	}

	return run, nil
}

// ListLinkRuns retrieves the most recent link runs up to the given limit.
func (s *SQLiteStore) ListLinkRuns(limit int) ([]*LinkRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, environment, status, error, scripts_total, static_calls, dynamic_calls, cyclic_scripts, started_at, completed_at
		 FROM link_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list link runs: %w", err)
	}
	defer rows.Close()

	var runs []*LinkRun
	for rows.Next() {
		run, err := scanLinkRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLinkRun(row rowScanner) (*LinkRun, error) {
	run := &LinkRun{}
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Environment, &run.Status, &errMsg,
		&run.ScriptsTotal, &run.StaticCalls, &run.DynamicCalls, &run.CyclicScripts,
		&run.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return run, nil
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
