// Package state persists the toolchain's view of a project between
// invocations: discovered scripts, their extracted calls, link run history,
// and per-file content hashes used for change detection.
package state

import (
	"time"

	"github.com/weftlabs/weft/internal/script"
)

// RunStatus is the lifecycle state of a link run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScriptRecord is the persisted row for one discovered script.
type ScriptRecord struct {
	Name        string
	FilePath    string
	RawHash     string
	LinkedHash  string
	Description string
	Owner       string
	Cyclic      bool
	UpdatedAt   time.Time
}

// CallRecord is one extracted call site of a script, in document order.
type CallRecord struct {
	ScriptName string
	Ordinal    int
	Target     string
	Mode       script.Mode
}

// LinkRun is one recorded invocation of the linker over a script set.
type LinkRun struct {
	ID            string
	Environment   string
	Status        RunStatus
	Error         string
	ScriptsTotal  int
	StaticCalls   int
	DynamicCalls  int
	CyclicScripts int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Store is the persistence contract the engine builds on. Implementations
// must be safe for use from a single goroutine; the engine serializes access.
type Store interface {
	// Script rows.
	UpsertScript(rec *ScriptRecord) error
	GetScript(name string) (*ScriptRecord, error)
	ListScripts() ([]*ScriptRecord, error)
	DeleteScript(name string) error

	// Call rows. ReplaceCalls swaps the full call list for a script.
	ReplaceCalls(scriptName string, calls []CallRecord) error
	GetCalls(scriptName string) ([]CallRecord, error)

	// Content hashes keyed by file path, for cheap change detection.
	SetContentHash(path, hash, fileType string) error
	GetContentHash(path string) (string, error)
	DeleteContentHash(path string) error

	// Link run history.
	CreateLinkRun(environment string) (*LinkRun, error)
	CompleteLinkRun(id string, status RunStatus, errMsg string, stats RunStats) error
	GetLinkRun(id string) (*LinkRun, error)
	GetLatestLinkRun(environment string) (*LinkRun, error)
	ListLinkRuns(limit int) ([]*LinkRun, error)

	Close() error
}

// RunStats is the summary written back when a link run completes.
type RunStats struct {
	ScriptsTotal  int
	StaticCalls   int
	DynamicCalls  int
	CyclicScripts int
}
