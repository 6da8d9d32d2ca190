package state

import (
	"path/filepath"
	"testing"

	"github.com/weftlabs/weft/internal/script"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	// Verify tables exist by querying them
	tables := []string{"scripts", "script_calls", "link_runs", "content_hashes"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			rows.Close()
		}
	}

	version, err := store.GetMigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("migration version = %d, want >= 1", version)
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()

	if _, err := store.GetScript("x"); err == nil {
		t.Error("expected error when database not opened")
	}
	if err := store.SetContentHash("p", "h", "script"); err == nil {
		t.Error("expected error when database not opened")
	}
}

func TestSQLiteStore_UpsertScript(t *testing.T) {
	store := setupTestStore(t)

	rec := &ScriptRecord{
		Name:     "billing.invoice",
		FilePath: "billing/invoice.star",
		RawHash:  "aaa",
	}
	if err := store.UpsertScript(rec); err != nil {
		t.Fatalf("failed to upsert script: %v", err)
	}

	got, err := store.GetScript("billing.invoice")
	if err != nil {
		t.Fatalf("failed to get script: %v", err)
	}
	if got == nil {
		t.Fatal("script not found after upsert")
	}
	if got.FilePath != "billing/invoice.star" || got.RawHash != "aaa" {
		t.Errorf("got %+v", got)
	}
	if got.LinkedHash != "" {
		t.Errorf("linked hash should start empty, got %q", got.LinkedHash)
	}

	// Second upsert with the same name updates in place.
	rec.RawHash = "bbb"
	rec.LinkedHash = "fff"
	rec.Cyclic = true
	if err := store.UpsertScript(rec); err != nil {
		t.Fatalf("failed to re-upsert script: %v", err)
	}

	got, err = store.GetScript("billing.invoice")
	if err != nil {
		t.Fatalf("failed to get script: %v", err)
	}
	if got.RawHash != "bbb" || got.LinkedHash != "fff" || !got.Cyclic {
		t.Errorf("update not applied: %+v", got)
	}

	all, err := store.ListScripts()
	if err != nil {
		t.Fatalf("failed to list scripts: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 script, got %d", len(all))
	}
}

func TestSQLiteStore_GetScriptMissing(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetScript("no.such.script")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing script, got %+v", got)
	}
}

func TestSQLiteStore_ReplaceCalls(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertScript(&ScriptRecord{Name: "a", FilePath: "a.star", RawHash: "h"}); err != nil {
		t.Fatalf("failed to upsert script: %v", err)
	}

	calls := []CallRecord{
		{Target: "b", Mode: script.ModeStatic},
		{Target: "c", Mode: script.ModeDynamic},
	}
	if err := store.ReplaceCalls("a", calls); err != nil {
		t.Fatalf("failed to replace calls: %v", err)
	}

	got, err := store.GetCalls("a")
	if err != nil {
		t.Fatalf("failed to get calls: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].Target != "b" || got[0].Mode != script.ModeStatic || got[0].Ordinal != 0 {
		t.Errorf("call 0 = %+v", got[0])
	}
	if got[1].Target != "c" || got[1].Mode != script.ModeDynamic || got[1].Ordinal != 1 {
		t.Errorf("call 1 = %+v", got[1])
	}

	// Replacing swaps the whole list.
	if err := store.ReplaceCalls("a", []CallRecord{{Target: "d", Mode: script.ModeStatic}}); err != nil {
		t.Fatalf("failed to replace calls again: %v", err)
	}
	got, err = store.GetCalls("a")
	if err != nil {
		t.Fatalf("failed to get calls: %v", err)
	}
	if len(got) != 1 || got[0].Target != "d" {
		t.Errorf("replacement not applied: %+v", got)
	}
}

func TestSQLiteStore_DeleteScriptCascades(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertScript(&ScriptRecord{Name: "a", FilePath: "a.star", RawHash: "h"}); err != nil {
		t.Fatalf("failed to upsert script: %v", err)
	}
	if err := store.ReplaceCalls("a", []CallRecord{{Target: "b"}}); err != nil {
		t.Fatalf("failed to replace calls: %v", err)
	}

	if err := store.DeleteScript("a"); err != nil {
		t.Fatalf("failed to delete script: %v", err)
	}

	got, err := store.GetScript("a")
	if err != nil {
		t.Fatalf("failed to get script: %v", err)
	}
	if got != nil {
		t.Error("script still present after delete")
	}

	calls, err := store.GetCalls("a")
	if err != nil {
		t.Fatalf("failed to get calls: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls not cascaded: %+v", calls)
	}
}

func TestSQLiteStore_ContentHashes(t *testing.T) {
	store := setupTestStore(t)

	hash, err := store.GetContentHash("scripts/a.star")
	if err != nil {
		t.Fatalf("failed to get content hash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash for unknown path, got %q", hash)
	}

	if err := store.SetContentHash("scripts/a.star", "h1", "script"); err != nil {
		t.Fatalf("failed to set content hash: %v", err)
	}
	if err := store.SetContentHash("scripts/a.star", "h2", "script"); err != nil {
		t.Fatalf("failed to update content hash: %v", err)
	}

	hash, err = store.GetContentHash("scripts/a.star")
	if err != nil {
		t.Fatalf("failed to get content hash: %v", err)
	}
	if hash != "h2" {
		t.Errorf("expected h2, got %q", hash)
	}

	if err := store.DeleteContentHash("scripts/a.star"); err != nil {
		t.Fatalf("failed to delete content hash: %v", err)
	}
	hash, err = store.GetContentHash("scripts/a.star")
	if err != nil {
		t.Fatalf("failed to get content hash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash after delete, got %q", hash)
	}
}

func TestSQLiteStore_LinkRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateLinkRun("dev")
	if err != nil {
		t.Fatalf("failed to create link run: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID should not be empty")
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected status running, got %q", run.Status)
	}

	stats := RunStats{ScriptsTotal: 3, StaticCalls: 2, DynamicCalls: 1, CyclicScripts: 0}
	if err := store.CompleteLinkRun(run.ID, RunStatusCompleted, "", stats); err != nil {
		t.Fatalf("failed to complete link run: %v", err)
	}

	got, err := store.GetLinkRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get link run: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("expected status completed, got %q", got.Status)
	}
	if got.ScriptsTotal != 3 || got.StaticCalls != 2 || got.DynamicCalls != 1 {
		t.Errorf("stats not recorded: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if got.Error != "" {
		t.Errorf("expected no error message, got %q", got.Error)
	}
}

func TestSQLiteStore_LinkRunFailure(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateLinkRun("dev")
	if err != nil {
		t.Fatalf("failed to create link run: %v", err)
	}

	if err := store.CompleteLinkRun(run.ID, RunStatusFailed, "unknown target: ghost", RunStats{}); err != nil {
		t.Fatalf("failed to complete link run: %v", err)
	}

	got, err := store.GetLinkRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get link run: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("expected status failed, got %q", got.Status)
	}
	if got.Error != "unknown target: ghost" {
		t.Errorf("error message not recorded: %q", got.Error)
	}
}

func TestSQLiteStore_CompleteLinkRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	if err := store.CompleteLinkRun("nonexistent-id", RunStatusCompleted, "", RunStats{}); err == nil {
		t.Error("expected error for nonexistent link run")
	}
}

func TestSQLiteStore_GetLatestLinkRun(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestLinkRun("dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil with no runs, got %+v", latest)
	}

	if _, err := store.CreateLinkRun("prod"); err != nil {
		t.Fatalf("failed to create link run: %v", err)
	}
	second, err := store.CreateLinkRun("dev")
	if err != nil {
		t.Fatalf("failed to create link run: %v", err)
	}

	latest, err = store.GetLatestLinkRun("dev")
	if err != nil {
		t.Fatalf("failed to get latest link run: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Errorf("latest run mismatch: %+v", latest)
	}

	runs, err := store.ListLinkRuns(10)
	if err != nil {
		t.Fatalf("failed to list link runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")

	store := NewSQLiteStore()
	if err := store.Open(path); err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := store.UpsertScript(&ScriptRecord{Name: "a", FilePath: "a.star", RawHash: "h"}); err != nil {
		t.Fatalf("failed to upsert script: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Reopen and verify persistence.
	reopened := NewSQLiteStore()
	if err := reopened.Open(path); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(); err != nil {
		t.Fatalf("failed to migrate reopened store: %v", err)
	}

	got, err := reopened.GetScript("a")
	if err != nil {
		t.Fatalf("failed to get script: %v", err)
	}
	if got == nil || got.RawHash != "h" {
		t.Errorf("script did not survive reopen: %+v", got)
	}
}
