package store

import (
	"context"
	"sync"

	"github.com/ricirt/feedrelay/internal/domain"
)

// MemoryStore is a hand-written in-memory Store used in unit tests and for
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu    sync.Mutex
	doc   *domain.Document
	saves int

	// Optional error overrides, set in tests to simulate failure paths.
	LoadErr error
	SaveErr error
}

// NewMemoryStore returns a MemoryStore seeded with doc (may be nil).
func NewMemoryStore(doc *domain.Document) *MemoryStore {
	m := &MemoryStore{}
	if doc != nil {
		m.doc = doc.Clone()
	}
	return m
}

func (m *MemoryStore) Load(_ context.Context) (*domain.Document, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return domain.NewDocument(), nil
	}
	return m.doc.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, doc *domain.Document) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc.Clone()
	m.saves++
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Saved returns a copy of the last saved document, or nil.
func (m *MemoryStore) Saved() *domain.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil
	}
	return m.doc.Clone()
}

// Saves returns how many times Save succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
