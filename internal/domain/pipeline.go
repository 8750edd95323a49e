package domain

import (
	"sort"
	"time"
)

// DocumentVersion is the schema version written by this build.
const DocumentVersion = 1

// HistoryCap bounds the forwarded and failed id histories per target.
const HistoryCap = 200

// Kind is the semantic classification of a feed item.
type Kind string

const (
	KindOriginal Kind = "original"
	KindRetweet  Kind = "retweet"
	KindReply    Kind = "reply"
	KindQuote    Kind = "quote"
	KindUnknown  Kind = "unknown"
)

// PublishMode selects what the publish executor does with a queued item.
type PublishMode string

const (
	ModeRetweet   PublishMode = "retweet"
	ModeRepublish PublishMode = "republish"
)

func (m PublishMode) IsValid() bool {
	switch m {
	case ModeRetweet, ModeRepublish:
		return true
	}
	return false
}

// Policy is the forwarding policy snapshot taken at the start of a cycle.
type Policy struct {
	Enabled       bool
	DryRun        bool
	Mode          PublishMode
	Pacing        time.Duration
	SkipMentions  bool
	ForwardQuotes bool
	FetchLimit    int
	// SkipBacklog makes the first poll of a target only set its cursor.
	SkipBacklog bool
}

// Forwardable reports whether items of kind k may be enqueued under p.
func (p Policy) Forwardable(k Kind) bool {
	switch k {
	case KindOriginal:
		return true
	case KindQuote:
		return p.ForwardQuotes
	}
	return false
}

// TargetState is the durable per-target cursor and outcome history.
type TargetState struct {
	CursorID     string   `json:"cursorId" yaml:"cursor_id"`
	ForwardedIDs []string `json:"forwardedIds" yaml:"forwarded_ids"`
	FailedIDs    []string `json:"failedIds" yaml:"failed_ids"`
}

// Snapshot is the compacted copy of a raw feed item kept with a queue item,
// enough to publish again without re-fetching.
type Snapshot struct {
	ID        string   `json:"id" yaml:"id"`
	Author    string   `json:"author,omitempty" yaml:"author,omitempty"`
	URL       string   `json:"url,omitempty" yaml:"url,omitempty"`
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
	MediaURLs []string `json:"mediaUrls,omitempty" yaml:"media_urls,omitempty"`
}

// QueueItem is one pending forward job, keyed by (Target, ItemID).
type QueueItem struct {
	Target        string     `json:"target" yaml:"target"`
	ItemID        string     `json:"itemId" yaml:"item_id"`
	Kind          Kind       `json:"kind" yaml:"kind"`
	Content       string     `json:"content" yaml:"content"`
	Source        Snapshot   `json:"sourceSnapshot" yaml:"source_snapshot"`
	DiscoveredAt  time.Time  `json:"discoveredAt" yaml:"discovered_at"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty" yaml:"last_attempt_at,omitempty"`
	Attempts      int        `json:"attempts" yaml:"attempts"`
	NextAttemptAt time.Time  `json:"nextAttemptAt" yaml:"next_attempt_at"`
	LastError     string     `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

// Key identifies the item within the queue.
func (q *QueueItem) Key() ItemKey { return ItemKey{Target: q.Target, ItemID: q.ItemID} }

// ItemKey is the queue identity of an item.
type ItemKey struct {
	Target string
	ItemID string
}

// Document is the single durable unit: all target states plus the queue.
// It is always written whole.
type Document struct {
	Version int                     `json:"version" yaml:"version"`
	Targets map[string]*TargetState `json:"targets" yaml:"targets"`
	Queue   []QueueItem             `json:"queue" yaml:"queue"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version: DocumentVersion,
		Targets: make(map[string]*TargetState),
		Queue:   []QueueItem{},
	}
}

// Normalize fills fields missing from older or hand-edited documents.
func (d *Document) Normalize() {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	if d.Targets == nil {
		d.Targets = make(map[string]*TargetState)
	}
	for name, st := range d.Targets {
		if st == nil {
			d.Targets[name] = &TargetState{}
		}
	}
	if d.Queue == nil {
		d.Queue = []QueueItem{}
	}
}

// Clone returns a deep copy, so a cycle can mutate it freely before it is
// swapped in as the new current document.
func (d *Document) Clone() *Document {
	c := &Document{
		Version: d.Version,
		Targets: make(map[string]*TargetState, len(d.Targets)),
		Queue:   make([]QueueItem, len(d.Queue)),
	}
	for name, st := range d.Targets {
		if st == nil {
			continue
		}
		c.Targets[name] = &TargetState{
			CursorID:     st.CursorID,
			ForwardedIDs: append([]string(nil), st.ForwardedIDs...),
			FailedIDs:    append([]string(nil), st.FailedIDs...),
		}
	}
	for i, it := range d.Queue {
		c.Queue[i] = it.clone()
	}
	return c
}

func (q QueueItem) clone() QueueItem {
	if q.LastAttemptAt != nil {
		t := *q.LastAttemptAt
		q.LastAttemptAt = &t
	}
	q.Source.MediaURLs = append([]string(nil), q.Source.MediaURLs...)
	return q
}

// TargetNames returns the tracked target names in sorted order.
func (d *Document) TargetNames() []string {
	names := make([]string, 0, len(d.Targets))
	for name := range d.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
