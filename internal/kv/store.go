// Package kv provides the section/key string store the persistence bridge
// and broadcast cache write through. Sections are small flat namespaces of
// string keys; there are no transactions across sections.
//
// Redis is the primary backend, Postgres the fallback when no Redis URL is
// configured, and the in-memory store serves tests and single-instance dev
// runs.
package kv

import (
	"context"
	"sync"
)

// Store is the durable section/key string store.
type Store interface {
	// Get returns the value for key in section; the bool reports presence.
	Get(ctx context.Context, section, key string) (string, bool, error)
	// Put writes one key in a section.
	Put(ctx context.Context, section, key, value string) error
	// GetSection returns every key/value in a section. A missing section
	// yields an empty map, not an error.
	GetSection(ctx context.Context, section string) (map[string]string, error)
	// PutSection replaces a section wholesale with the given values.
	PutSection(ctx context.Context, section string, values map[string]string) error
	// DeleteSection removes a section and everything under it.
	DeleteSection(ctx context.Context, section string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sections map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sections: make(map[string]map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, section, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.sections[section][key]
	return value, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sections[section] == nil {
		s.sections[section] = make(map[string]string)
	}
	s.sections[section][key] = value
	return nil
}

func (s *MemoryStore) GetSection(_ context.Context, section string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.sections[section]))
	for k, v := range s.sections[section] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) PutSection(_ context.Context, section string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replacement := make(map[string]string, len(values))
	for k, v := range values {
		replacement[k] = v
	}
	s.sections[section] = replacement
	return nil
}

func (s *MemoryStore) DeleteSection(_ context.Context, section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sections, section)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
