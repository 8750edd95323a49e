package worker

import (
	"context"
	"time"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/publish"
)

// Hooks carries the metric callbacks injected by main so the pipeline stays
// metrics-agnostic. Any field may be nil.
type Hooks struct {
	OnFeedRequest  func(target string, err error)
	OnEnqueued     func(target string, n int)
	OnPublish      func(outcome string)
	OnForwarded    func(target string)
	OnFailed       func(target string)
	OnQueueDepth   func(n int)
	OnRateLimited  func(until time.Time)
	OnCycle        func(kind string, d time.Duration)
	OnCycleSkipped func(kind string)
}

// Publish outcomes reported to Hooks.OnPublish.
const (
	OutcomeSuccess     = "success"
	OutcomeDryRun      = "dry_run"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeAuth        = "unauthorized"
)

// Cycle kinds reported to Hooks.OnCycle and OnCycleSkipped.
const (
	CyclePoll  = "poll"
	CycleDrain = "drain"
)

func (h Hooks) feedRequest(target string, err error) {
	if h.OnFeedRequest != nil {
		h.OnFeedRequest(target, err)
	}
}

func (h Hooks) enqueued(target string, n int) {
	if h.OnEnqueued != nil && n > 0 {
		h.OnEnqueued(target, n)
	}
}

func (h Hooks) publish(outcome string) {
	if h.OnPublish != nil {
		h.OnPublish(outcome)
	}
}

func (h Hooks) forwarded(target string) {
	if h.OnForwarded != nil {
		h.OnForwarded(target)
	}
}

func (h Hooks) failed(target string) {
	if h.OnFailed != nil {
		h.OnFailed(target)
	}
}

func (h Hooks) queueDepth(n int) {
	if h.OnQueueDepth != nil {
		h.OnQueueDepth(n)
	}
}

func (h Hooks) rateLimited(until time.Time) {
	if h.OnRateLimited != nil {
		h.OnRateLimited(until)
	}
}

func (h Hooks) cycle(kind string, d time.Duration) {
	if h.OnCycle != nil {
		h.OnCycle(kind, d)
	}
}

func (h Hooks) cycleSkipped(kind string) {
	if h.OnCycleSkipped != nil {
		h.OnCycleSkipped(kind)
	}
}

// RuntimeSource supplies the active targets and forwarding policy. It is
// read once at the start of every cycle.
type RuntimeSource interface {
	Targets() []string
	Policy() domain.Policy
}

// ExecutorSource hands out the publish executor. Reset drops a cached
// executor whose credentials were rejected.
type ExecutorSource interface {
	Acquire(ctx context.Context) (publish.Executor, error)
	Reset()
}
