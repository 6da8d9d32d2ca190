// Package memkv is the in-process kv backend. It backs tests and throwaway
// console sessions; nothing survives the process.
//
// Import this package with a blank identifier to register the backend:
//
//	import _ "github.com/weftlabs/weft/internal/kv/memkv"
package memkv

import (
	"context"
	"log/slog"
	"sync"

	"github.com/weftlabs/weft/internal/kv"
)

func init() {
	kv.Register("memory", func(cfg kv.Config, logger *slog.Logger) (kv.Store, error) {
		return New(), nil
	})
}

// Store is an in-memory field-addressed mapping.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[string]string)}
}

func (s *Store) Get(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.data[key]
	if !ok {
		return "", false, nil
	}
	v, ok := fields[field]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.data[key]
	if !ok {
		fields = make(map[string]string)
		s.data[key] = fields
	}
	fields[field] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields, ok := s.data[key]; ok {
		delete(fields, field)
	}
	return nil
}

func (s *Store) All(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data[key]))
	for f, v := range s.data[key] {
		out[f] = v
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
