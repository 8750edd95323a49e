// Package publish turns queued items into delivered posts. Two backends
// implement Executor: a REST client and a headless-browser client.
package publish

import (
	"context"

	"github.com/ricirt/feedrelay/internal/domain"
)

// Request is one publish call.
type Request struct {
	Mode    domain.PublishMode
	Target  string
	ItemID  string
	Content string
	Media   []string
}

// Result describes the delivered post.
type Result struct {
	RemoteID string
}

// Executor publishes content downstream. Errors are categorised with the
// domain sentinels: ErrUnauthorized / ErrCredentialsMissing for credential
// problems, *domain.RateLimitError for throttling, anything else is generic.
type Executor interface {
	Publish(ctx context.Context, req Request) (*Result, error)
	Close() error
}

// Factory builds a ready-to-use Executor.
type Factory func(ctx context.Context) (Executor, error)
