// Package tracker maintains per-target cursors and bounded outcome
// histories inside a pipeline document. It only touches in-memory state;
// persisting the document is the caller's job.
package tracker

import "github.com/ricirt/feedrelay/internal/domain"

// Ensure returns the state for target, creating a default one if absent.
func Ensure(doc *domain.Document, target string) *domain.TargetState {
	if doc.Targets == nil {
		doc.Targets = make(map[string]*domain.TargetState)
	}
	st, ok := doc.Targets[target]
	if !ok || st == nil {
		st = &domain.TargetState{}
		doc.Targets[target] = st
	}
	return st
}

// Cursor returns the target's watermark, or "" if the target is unknown.
func Cursor(doc *domain.Document, target string) string {
	if st, ok := doc.Targets[target]; ok && st != nil {
		return st.CursorID
	}
	return ""
}

// AdvanceCursor moves the cursor to max(current, candidate).
// It reports whether the cursor changed.
func AdvanceCursor(doc *domain.Document, target, candidate string) bool {
	st := Ensure(doc, target)
	if candidate == "" || domain.CompareIDs(candidate, st.CursorID) <= 0 {
		return false
	}
	st.CursorID = candidate
	return true
}

// RecordForwarded pushes id to the front of the forwarded history.
// Recording an id twice is a no-op.
func RecordForwarded(doc *domain.Document, target, id string) bool {
	st := Ensure(doc, target)
	var added bool
	st.ForwardedIDs, added = pushFront(st.ForwardedIDs, id)
	return added
}

// RecordFailed pushes id to the front of the failed history.
// Recording an id twice is a no-op.
func RecordFailed(doc *domain.Document, target, id string) bool {
	st := Ensure(doc, target)
	var added bool
	st.FailedIDs, added = pushFront(st.FailedIDs, id)
	return added
}

// Forwarded reports whether id was already delivered for target.
func Forwarded(doc *domain.Document, target, id string) bool {
	st, ok := doc.Targets[target]
	return ok && st != nil && contains(st.ForwardedIDs, id)
}

// Failed reports whether id was abandoned for target.
func Failed(doc *domain.Document, target, id string) bool {
	st, ok := doc.Targets[target]
	return ok && st != nil && contains(st.FailedIDs, id)
}

// ClearFailed empties the failed history of target and returns how many
// ids were dropped.
func ClearFailed(doc *domain.Document, target string) int {
	st, ok := doc.Targets[target]
	if !ok || st == nil {
		return 0
	}
	n := len(st.FailedIDs)
	st.FailedIDs = nil
	return n
}

func pushFront(ring []string, id string) ([]string, bool) {
	if id == "" || contains(ring, id) {
		return ring, false
	}
	out := make([]string, 0, min(len(ring)+1, domain.HistoryCap))
	out = append(out, id)
	for _, existing := range ring {
		if len(out) == domain.HistoryCap {
			break
		}
		out = append(out, existing)
	}
	return out, true
}

func contains(ring []string, id string) bool {
	for _, existing := range ring {
		if existing == id {
			return true
		}
	}
	return false
}
