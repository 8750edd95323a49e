package store

import (
	"context"
	"errors"

	"github.com/ricirt/feedrelay/internal/domain"
)

// Store persists the pipeline document as one unit.
// Implementations: FileStore (YAML), SQLiteStore, PostgresStore and
// MemoryStore for tests.
type Store interface {
	// Load returns the stored document, or a fresh one when nothing has been
	// written yet.
	Load(ctx context.Context) (*domain.Document, error)
	// Save replaces the stored document wholesale.
	Save(ctx context.Context, doc *domain.Document) error
	Close() error
}

// ErrUnchanged may be returned by an Update callback to skip the write.
var ErrUnchanged = errors.New("document unchanged")
