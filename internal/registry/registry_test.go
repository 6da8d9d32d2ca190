package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/weftlabs/weft/internal/kv/memkv"
	"github.com/weftlabs/weft/internal/script"
)

func TestRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memkv.New(), "", nil)

	if err := m.Register(ctx, "queue.push", "aaa"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	hash, err := m.Lookup(ctx, "queue.push")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hash != "aaa" {
		t.Errorf("Lookup = %q, want aaa", hash)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memkv.New(), "", nil)

	if err := m.Register(ctx, "a.b", "h1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register(ctx, "a.b", "h1"); err != nil {
		t.Fatalf("repeat Register: %v", err)
	}
	hash, err := m.Lookup(ctx, "a.b")
	if err != nil || hash != "h1" {
		t.Fatalf("Lookup = %q, %v", hash, err)
	}
}

func TestRegisterLatestWins(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memkv.New(), "", nil)

	_ = m.Register(ctx, "a.b", "old")
	if err := m.Register(ctx, "a.b", "new"); err != nil {
		t.Fatalf("overwrite Register: %v", err)
	}
	hash, _ := m.Lookup(ctx, "a.b")
	if hash != "new" {
		t.Errorf("Lookup = %q, want new", hash)
	}
}

func TestLookupMiss(t *testing.T) {
	m := NewManager(memkv.New(), "", nil)

	_, err := m.Lookup(context.Background(), "no.such")
	if err == nil {
		t.Fatal("want RegistryMissError, got nil")
	}
	var missErr *script.RegistryMissError
	if !errors.As(err, &missErr) {
		t.Fatalf("error type = %T", err)
	}
	if missErr.Name != "no.such" {
		t.Errorf("Name = %q", missErr.Name)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memkv.New(), "", nil)

	if err := m.Register(ctx, "Bad.Name", "h"); err == nil {
		t.Error("invalid name accepted")
	}
	if err := m.Register(ctx, "ok.name", ""); err == nil {
		t.Error("empty hash accepted")
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	m := NewManager(store, "custom:key", nil)

	_ = m.Register(ctx, "a.one", "1")
	_ = m.Register(ctx, "b.two", "2")

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 2 || snap["a.one"] != "1" || snap["b.two"] != "2" {
		t.Errorf("Snapshot = %v", snap)
	}

	// Entries live under the configured key, untouched by other keys.
	raw, _ := store.All(ctx, "custom:key")
	if raw["a.one"] != "fn:1" {
		t.Errorf("stored value = %q, want tagged fn:1", raw["a.one"])
	}
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memkv.New(), "", nil)

	_ = m.Register(ctx, "a.b", "h")
	if err := m.Unregister(ctx, "a.b"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := m.Lookup(ctx, "a.b"); err == nil {
		t.Error("entry survives Unregister")
	}
}
