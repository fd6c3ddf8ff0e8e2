package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store for tests and local runs.
type Memory[T any] struct {
	mu   sync.RWMutex
	recs map[string]T
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{recs: make(map[string]T)}
}

// Load returns a copy so callers can mutate freely before saving back.
func (m *Memory[T]) Load(ctx context.Context, key string) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory[T]) Save(ctx context.Context, key string, rec *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = *rec
	return nil
}

func (m *Memory[T]) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}

// Len reports the number of stored records.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}
