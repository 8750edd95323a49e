// Package queue implements the durable forward queue as operations over the
// pipeline document. Items are unique per (target, item id).
package queue

import (
	"slices"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/tracker"
)

// Duplicate explains why an item was not admitted.
type Duplicate string

const (
	NotDuplicate     Duplicate = ""
	AlreadyQueued    Duplicate = "already_queued"
	AlreadyForwarded Duplicate = "already_forwarded"
	PreviouslyFailed Duplicate = "previously_failed"
)

// Check reports whether (target, id) is already known to the pipeline.
func Check(doc *domain.Document, target, id string) Duplicate {
	switch {
	case Index(doc, domain.ItemKey{Target: target, ItemID: id}) >= 0:
		return AlreadyQueued
	case tracker.Forwarded(doc, target, id):
		return AlreadyForwarded
	case tracker.Failed(doc, target, id):
		return PreviouslyFailed
	}
	return NotDuplicate
}

// Enqueue appends item unless its id is queued, forwarded or failed.
func Enqueue(doc *domain.Document, item domain.QueueItem) Duplicate {
	if dup := Check(doc, item.Target, item.ItemID); dup != NotDuplicate {
		return dup
	}
	doc.Queue = append(doc.Queue, item)
	return NotDuplicate
}

// Index returns the position of key in the queue, or -1.
func Index(doc *domain.Document, key domain.ItemKey) int {
	return slices.IndexFunc(doc.Queue, func(it domain.QueueItem) bool { return it.Key() == key })
}

// Get returns a copy of the queued item for key.
func Get(doc *domain.Document, key domain.ItemKey) (domain.QueueItem, bool) {
	if i := Index(doc, key); i >= 0 {
		return doc.Queue[i], true
	}
	return domain.QueueItem{}, false
}

// Replace overwrites the queued item with the same key. It reports false if
// the item is no longer queued (e.g. an operator cleared it meanwhile).
func Replace(doc *domain.Document, item domain.QueueItem) bool {
	i := Index(doc, item.Key())
	if i < 0 {
		return false
	}
	doc.Queue[i] = item
	return true
}

// Remove deletes the item for key.
func Remove(doc *domain.Document, key domain.ItemKey) bool {
	i := Index(doc, key)
	if i < 0 {
		return false
	}
	doc.Queue = slices.Delete(doc.Queue, i, i+1)
	return true
}

// SortByDue orders the queue by NextAttemptAt, keeping insertion order for
// equal times.
func SortByDue(doc *domain.Document) {
	slices.SortStableFunc(doc.Queue, func(a, b domain.QueueItem) int {
		return a.NextAttemptAt.Compare(b.NextAttemptAt)
	})
}

// PruneTargets drops items whose target is not in active and returns how
// many were removed.
func PruneTargets(doc *domain.Document, active []string) int {
	before := len(doc.Queue)
	doc.Queue = slices.DeleteFunc(doc.Queue, func(it domain.QueueItem) bool {
		return !slices.Contains(active, it.Target)
	})
	return before - len(doc.Queue)
}

// Clear removes every item, or only target's items when target is non-empty.
func Clear(doc *domain.Document, target string) int {
	before := len(doc.Queue)
	if target == "" {
		doc.Queue = []domain.QueueItem{}
		return before
	}
	doc.Queue = slices.DeleteFunc(doc.Queue, func(it domain.QueueItem) bool { return it.Target == target })
	return before - len(doc.Queue)
}

// DepthByTarget counts queued items per target.
func DepthByTarget(doc *domain.Document) map[string]int {
	out := make(map[string]int)
	for _, it := range doc.Queue {
		out[it.Target]++
	}
	return out
}
