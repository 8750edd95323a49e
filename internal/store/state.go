package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ricirt/feedrelay/internal/domain"
)

// State owns the current pipeline document. Poll and drain cycles never patch
// it in place: Update works on a clone and swaps it in only after the clone
// has been saved, so two cycles cannot clobber each other's writes.
type State struct {
	mu    sync.Mutex
	store Store
	doc   *domain.Document
}

// Open loads the document from s.
func Open(ctx context.Context, s Store) (*State, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		doc = domain.NewDocument()
	}
	doc.Normalize()
	return &State{store: s, doc: doc}, nil
}

// Snapshot returns a deep copy of the current document.
func (st *State) Snapshot() *domain.Document {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.doc.Clone()
}

// Update applies fn to a copy of the document, persists it and makes it
// current. If fn fails, or the save fails, the current document is kept.
func (st *State) Update(ctx context.Context, fn func(doc *domain.Document) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.doc.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}
	if err := st.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	st.doc = next
	return nil
}

// Close releases the underlying store.
func (st *State) Close() error {
	return st.store.Close()
}
