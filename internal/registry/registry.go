// Package registry manages the published dotted-name → content-hash mapping
// in the shared store. The mapping is advisory for humans and for run-time
// dynamic dispatch; the linker never consults it.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weftlabs/weft/internal/kv"
	"github.com/weftlabs/weft/internal/script"
)

// DefaultKey is the sentinel key the registry mapping lives under.
const DefaultKey = "weft:registry"

// Manager publishes and resolves registry entries.
type Manager struct {
	store  kv.Store
	key    string
	logger *slog.Logger
}

// NewManager creates a manager over the shared store. An empty key selects
// DefaultKey; a nil logger discards.
func NewManager(store kv.Store, key string, logger *slog.Logger) *Manager {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, key: key, logger: logger}
}

// Key returns the sentinel key the mapping lives under.
func (m *Manager) Key() string {
	return m.key
}

// Register publishes name → hash. Registering an identical pair again is a
// no-op. A different hash for an existing name overwrites the entry: the
// latest linked version wins.
func (m *Manager) Register(ctx context.Context, name, hash string) error {
	if err := script.ValidateName(name); err != nil {
		return err
	}
	if hash == "" {
		return fmt.Errorf("cannot register %q with an empty hash", name)
	}

	tagged := script.TagHash(hash)
	current, ok, err := m.store.Get(ctx, m.key, name)
	if err != nil {
		return fmt.Errorf("failed to read registry entry %q: %w", name, err)
	}
	if ok && current == tagged {
		return nil
	}
	if ok {
		m.logger.Debug("overwriting registry entry",
			slog.String("name", name),
			slog.String("old", current),
			slog.String("new", tagged))
	}
	if err := m.store.Set(ctx, m.key, name, tagged); err != nil {
		return fmt.Errorf("failed to write registry entry %q: %w", name, err)
	}
	return nil
}

// Lookup resolves a dotted name to its content hash.
func (m *Manager) Lookup(ctx context.Context, name string) (string, error) {
	v, ok, err := m.store.Get(ctx, m.key, name)
	if err != nil {
		return "", fmt.Errorf("failed to read registry entry %q: %w", name, err)
	}
	if !ok {
		return "", &script.RegistryMissError{Name: name}
	}
	return script.ParseTaggedHash(v)
}

// Unregister removes an entry. Removing an absent entry is not an error.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	if err := m.store.Delete(ctx, m.key, name); err != nil {
		return fmt.Errorf("failed to delete registry entry %q: %w", name, err)
	}
	return nil
}

// Snapshot returns every published entry as name → untagged hash.
func (m *Manager) Snapshot(ctx context.Context) (map[string]string, error) {
	raw, err := m.store.All(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		hash, err := script.ParseTaggedHash(v)
		if err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", name, err)
		}
		out[name] = hash
	}
	return out, nil
}
