package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/backoff"
	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/publish"
	"github.com/ricirt/feedrelay/internal/queue"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/tracker"
)

// ProcessorConfig holds the drain tunables.
type ProcessorConfig struct {
	// MaxAttempts is the number of failed publishes after which an item is
	// moved to the failed history.
	MaxAttempts int
	// DisabledDeferral pushes items forward while forwarding is disabled.
	DisabledDeferral time.Duration
	// PublishTimeout bounds a single publish call.
	PublishTimeout time.Duration
}

func (c *ProcessorConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.DisabledDeferral <= 0 {
		c.DisabledDeferral = 15 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
}

// DrainResult summarises one drain tick.
type DrainResult struct {
	Pruned      int  `json:"pruned"`
	Attempted   int  `json:"attempted"`
	Forwarded   int  `json:"forwarded"`
	Failed      int  `json:"failed"`
	Retrying    int  `json:"retrying"`
	Filtered    int  `json:"filtered"`
	Deferred    int  `json:"deferred"`
	RateLimited bool `json:"rate_limited,omitempty"`
	Paused      bool `json:"paused,omitempty"`
	Remaining   int  `json:"remaining"`
}

// change is one queue transition collected during a drain and applied to
// the document in a single update at the end of the tick.
type change struct {
	item domain.QueueItem
	kind changeKind
}

type changeKind int

const (
	changeForwarded changeKind = iota
	changeFailed
	changeDropped
	changeReschedule
)

// Processor drains due queue items through the publish executor.
type Processor struct {
	state    *store.State
	runtime  RuntimeSource
	acquirer ExecutorSource
	pipeline *PipelineState
	hooks    Hooks
	logger   *zap.Logger
	cfg      ProcessorConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewProcessor(
	state *store.State,
	runtime RuntimeSource,
	acquirer ExecutorSource,
	pipeline *PipelineState,
	cfg ProcessorConfig,
	hooks Hooks,
	logger *zap.Logger,
) *Processor {
	cfg.defaults()
	return &Processor{
		state: state, runtime: runtime, acquirer: acquirer, pipeline: pipeline,
		cfg: cfg, hooks: hooks, logger: logger,
		now: time.Now, sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Drain runs one tick of the queue processor.
func (p *Processor) Drain(ctx context.Context) DrainResult {
	start := p.now()
	defer func() {
		p.pipeline.markDrain(p.now())
		p.hooks.cycle(CycleDrain, p.now().Sub(start))
	}()

	var res DrainResult
	policy := p.runtime.Policy()
	justEnabled := p.pipeline.observeEnabled(policy.Enabled)

	snap := p.state.Snapshot()
	if len(snap.Queue) == 0 {
		p.hooks.queueDepth(0)
		return res
	}
	log := p.logger.With(zap.String("cycle_id", uuid.NewString()))

	// Items of removed targets go first, and are persisted right away.
	res.Pruned = p.prune(ctx, log)
	if res.Pruned > 0 {
		snap = p.state.Snapshot()
	}
	queue.SortByDue(snap)
	res.Remaining = len(snap.Queue)
	p.hooks.queueDepth(res.Remaining)
	if len(snap.Queue) == 0 {
		return res
	}

	now := p.now()
	if paused, shouldLog := p.pipeline.paused(now); paused {
		res.Paused = true
		if shouldLog {
			log.Info("queue is rate limited, skipping drain",
				zap.Time("resume_at", p.pipeline.RateLimitedUntil()),
				zap.Int("queued", len(snap.Queue)))
		}
		return res
	}

	live := policy.Enabled && !policy.DryRun
	var exec publish.Executor
	if live {
		var err error
		exec, err = p.acquirer.Acquire(ctx)
		if err != nil {
			p.failAcquisition(ctx, snap, justEnabled, err, &res, log)
			return res
		}
	}

	var changes []change
	for i, item := range snap.Queue {
		now = p.now()
		if !p.eligible(item, now, justEnabled) {
			// Sorted by due time: nothing after this item is processed.
			break
		}
		ilog := log.With(zap.String("target", item.Target), zap.String("item_id", item.ItemID))

		if reason := filterReason(item, policy); reason != "" {
			changes = append(changes, change{item: item, kind: changeDropped})
			res.Filtered++
			ilog.Info("dropped from queue: " + reason)
			continue
		}

		if !policy.Enabled {
			item.NextAttemptAt = now.Add(p.cfg.DisabledDeferral)
			changes = append(changes, change{item: item, kind: changeReschedule})
			res.Deferred++
			continue
		}

		if policy.DryRun {
			changes = append(changes, change{item: item, kind: changeForwarded})
			res.Forwarded++
			p.hooks.publish(OutcomeDryRun)
			ilog.Info("dry run: marked forwarded")
			continue
		}

		res.Attempted++
		result, err := p.publish(ctx, exec, item, policy)
		if err == nil {
			changes = append(changes, change{item: item, kind: changeForwarded})
			res.Forwarded++
			p.hooks.publish(OutcomeSuccess)
			ilog.Info("forwarded", zap.String("mode", string(policy.Mode)), zap.String("remote_id", result.RemoteID))
			if policy.Pacing > 0 && p.moreDue(snap.Queue, i+1, justEnabled) {
				p.sleep(ctx, policy.Pacing)
			}
			continue
		}

		if domain.IsAuthError(err) {
			// Retrying will not help until an operator fixes the credentials.
			p.hooks.publish(OutcomeAuth)
			ilog.Error("publish credentials rejected, drain stopped", zap.Error(err))
			p.acquirer.Reset()
			break
		}

		ch, sched := p.recordFailure(item, now, err)
		changes = append(changes, ch)
		if ch.kind == changeFailed {
			res.Failed++
			ilog.Error("publish failed permanently, giving up",
				zap.Int("attempts", ch.item.Attempts), zap.Error(err))
		} else {
			res.Retrying++
			ilog.Warn("publish failed, will retry",
				zap.Int("attempts", ch.item.Attempts),
				zap.Time("next_attempt_at", ch.item.NextAttemptAt),
				zap.Error(err))
		}
		if sched.RateLimited {
			res.RateLimited = true
			p.hooks.publish(OutcomeRateLimited)
			p.pipeline.PauseUntil(sched.At)
			p.hooks.rateLimited(sched.At)
			ilog.Warn("publish rate limited, pausing queue", zap.Time("resume_at", sched.At))
			break
		}
		p.hooks.publish(OutcomeError)
	}

	res.Remaining = p.apply(ctx, changes, log)
	return res
}

func (p *Processor) eligible(item domain.QueueItem, now time.Time, justEnabled bool) bool {
	if !item.NextAttemptAt.After(now) {
		return true
	}
	// Freshly enabled forwarding drains never-attempted items immediately.
	return justEnabled && item.Attempts == 0
}

// moreDue reports whether the item at next exists and is eligible now, so
// pacing never waits in front of an item the tick will not process.
func (p *Processor) moreDue(items []domain.QueueItem, next int, justEnabled bool) bool {
	return next < len(items) && p.eligible(items[next], p.now(), justEnabled)
}

func filterReason(item domain.QueueItem, policy domain.Policy) string {
	if policy.SkipMentions && strings.Contains(item.Content, "@") {
		return "mentions are skipped"
	}
	if !policy.Forwardable(item.Kind) {
		return "kind " + string(item.Kind) + " is not forwarded"
	}
	return ""
}

func (p *Processor) publish(ctx context.Context, exec publish.Executor, item domain.QueueItem, policy domain.Policy) (*publish.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	p.pipeline.publishCalls.Add(1)
	content := item.Content
	if content == "" {
		content = item.Source.Text
	}
	res, err := exec.Publish(ctx, publish.Request{
		Mode:    policy.Mode,
		Target:  item.Target,
		ItemID:  item.ItemID,
		Content: content,
		Media:   item.Source.MediaURLs,
	})
	if err == nil && res == nil {
		res = &publish.Result{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("publish timed out: %w", err)
	}
	return res, err
}

// recordFailure counts a failed attempt and decides between rescheduling and
// giving up.
func (p *Processor) recordFailure(item domain.QueueItem, now time.Time, err error) (change, backoff.Schedule) {
	item.Attempts++
	attemptedAt := now.UTC()
	item.LastAttemptAt = &attemptedAt
	item.LastError = err.Error()

	sched := backoff.Next(now, item.Attempts, err)
	item.NextAttemptAt = sched.At.UTC()
	if item.Attempts >= p.cfg.MaxAttempts {
		return change{item: item, kind: changeFailed}, sched
	}
	return change{item: item, kind: changeReschedule}, sched
}

// failAcquisition marks every due item as attempted when no executor could
// be built. Items stay queued; one log line covers the whole tick.
func (p *Processor) failAcquisition(
	ctx context.Context,
	snap *domain.Document,
	justEnabled bool,
	acqErr error,
	res *DrainResult,
	log *zap.Logger,
) {
	now := p.now()
	var changes []change
	for _, item := range snap.Queue {
		if !p.eligible(item, now, justEnabled) {
			break
		}
		item.Attempts++
		attemptedAt := now.UTC()
		item.LastAttemptAt = &attemptedAt
		item.LastError = acqErr.Error()
		item.NextAttemptAt = backoff.Next(now, item.Attempts, acqErr).At.UTC()
		changes = append(changes, change{item: item, kind: changeReschedule})
	}
	res.Retrying = len(changes)
	log.Error("publish executor unavailable, due items rescheduled",
		zap.Int("items", len(changes)), zap.Error(acqErr))
	res.Remaining = p.apply(ctx, changes, log)
}

func (p *Processor) prune(ctx context.Context, log *zap.Logger) int {
	active := p.runtime.Targets()
	var removed int
	err := p.state.Update(ctx, func(doc *domain.Document) error {
		removed = queue.PruneTargets(doc, active)
		if removed == 0 {
			return store.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		log.Error("failed to persist queue pruning", zap.Error(err))
		return 0
	}
	if removed > 0 {
		log.Info("removed queue items of inactive targets", zap.Int("count", removed))
	}
	return removed
}

// apply writes all collected transitions in one document update and returns
// the resulting queue depth.
func (p *Processor) apply(ctx context.Context, changes []change, log *zap.Logger) int {
	var depth int
	err := p.state.Update(ctx, func(doc *domain.Document) error {
		for _, c := range changes {
			key := c.item.Key()
			switch c.kind {
			case changeForwarded:
				tracker.RecordForwarded(doc, c.item.Target, c.item.ItemID)
				queue.Remove(doc, key)
			case changeFailed:
				tracker.RecordFailed(doc, c.item.Target, c.item.ItemID)
				queue.Remove(doc, key)
			case changeDropped:
				queue.Remove(doc, key)
			case changeReschedule:
				// An operator may have cleared the item meanwhile.
				queue.Replace(doc, c.item)
			}
		}
		depth = len(doc.Queue)
		if len(changes) == 0 {
			return store.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		log.Error("failed to persist drain results", zap.Error(err))
		depth = len(p.state.Snapshot().Queue)
		p.hooks.queueDepth(depth)
		return depth
	}

	for _, c := range changes {
		switch c.kind {
		case changeForwarded:
			p.hooks.forwarded(c.item.Target)
		case changeFailed:
			p.hooks.failed(c.item.Target)
		}
	}
	p.hooks.queueDepth(depth)
	return depth
}
