// Package feed reads remote content feeds page by page.
package feed

import "context"

// MaxPageSize is the largest page the upstream serves.
const MaxPageSize = 20

// PageRequest asks for one page of a target's feed, newest first.
type PageRequest struct {
	Target string
	// Cursor is the pagination token returned with the previous page.
	Cursor string
	Count  int
}

// Page is one page of a feed.
type Page struct {
	Items      []Item
	NextCursor string
	HasMore    bool
	// PinnedID is the id of the item pinned to the top of the feed, if any.
	PinnedID string
}

// Source abstracts the remote feed. Errors are categorised with the domain
// sentinels: ErrUnauthorized/ErrCredentialsMissing, *RateLimitError, or a
// generic transport/HTTP/API error.
type Source interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}
