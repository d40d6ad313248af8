package store

import (
	"context"
	"sync"
)

// InMemoryKV is a simple in-process store for local/dev use and tests.
type InMemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{values: make(map[string][]byte)}
}

func (s *InMemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

func (s *InMemoryKV) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = cp
	return nil
}

func (s *InMemoryKV) Close() error { return nil }
