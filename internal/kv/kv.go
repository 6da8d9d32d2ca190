// Package kv abstracts the shared store that carries the published registry
// mapping. A backend exposes one capability: a field-addressed string
// mapping under a top-level key. Backends register themselves in their
// init() functions; import one with a blank identifier to make it available.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Store is the shared mapping capability. Implementations must be safe for
// concurrent use: registration of a linked batch writes from several
// goroutines at once.
type Store interface {
	// Get returns the value of one field under key. The second return is
	// false when the field is absent.
	Get(ctx context.Context, key, field string) (string, bool, error)
	// Set writes one field under key, overwriting any previous value.
	Set(ctx context.Context, key, field, value string) error
	// Delete removes one field under key. Deleting an absent field is not an
	// error.
	Delete(ctx context.Context, key, field string) error
	// All returns every field under key.
	All(ctx context.Context, key string) (map[string]string, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"` // sqlite database file
	DSN     string `koanf:"dsn"`  // postgres connection string
	Key     string `koanf:"key"`  // top-level key of the registry mapping
}

// Factory builds a Store from config. A nil logger uses a discard logger.
type Factory func(cfg Config, logger *slog.Logger) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a backend factory to the registry. Called by backend
// implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a backend factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Open creates a store for the configured backend.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if cfg.Backend == "" {
		return nil, fmt.Errorf("kv backend not specified")
	}
	factory, ok := Get(cfg.Backend)
	if !ok {
		return nil, &UnknownBackendError{
			Name:      cfg.Backend,
			Available: ListBackends(),
		}
	}
	return factory(cfg, logger)
}

// ListBackends returns all registered backend names (sorted).
func ListBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownBackendError is returned when an unknown backend is requested.
type UnknownBackendError struct {
	Name      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown kv backend %q, available: %v", e.Name, e.Available)
}
