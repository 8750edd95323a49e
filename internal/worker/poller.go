package worker

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/classify"
	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/feed"
	"github.com/ricirt/feedrelay/internal/queue"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/tracker"
)

// maxPages bounds the number of pages fetched per target per cycle.
const maxPages = 20

// PollResult summarises one target's poll.
type PollResult struct {
	Target     string `json:"target"`
	Pages      int    `json:"pages"`
	Seen       int    `json:"seen"`
	New        int    `json:"new"`
	Enqueued   int    `json:"enqueued"`
	Filtered   int    `json:"filtered"`
	Duplicates int    `json:"duplicates"`
	Cursor     string `json:"cursor"`
	Bootstrap  bool   `json:"bootstrap,omitempty"`
	Error      string `json:"error,omitempty"`

	err error
}

// Err returns the error that aborted the poll, if any.
func (r PollResult) Err() error { return r.err }

// Poller fetches new items for every active target, newest first, until it
// reaches the target's cursor, then enqueues the forwardable ones oldest
// first and advances the cursor.
type Poller struct {
	source   feed.Source
	state    *store.State
	runtime  RuntimeSource
	pipeline *PipelineState
	hooks    Hooks
	logger   *zap.Logger
	now      func() time.Time
}

func NewPoller(
	source feed.Source,
	state *store.State,
	runtime RuntimeSource,
	pipeline *PipelineState,
	hooks Hooks,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		source: source, state: state, runtime: runtime, pipeline: pipeline,
		hooks: hooks, logger: logger, now: time.Now,
	}
}

// Poll runs one cycle over all active targets. A failing target does not
// affect the others.
func (p *Poller) Poll(ctx context.Context) []PollResult {
	start := p.now()
	log := p.logger.With(zap.String("cycle_id", uuid.NewString()))
	targets := p.runtime.Targets()
	policy := p.runtime.Policy()

	results := make([]PollResult, 0, len(targets))
	for _, target := range targets {
		results = append(results, p.pollTarget(ctx, target, policy, log))
	}

	p.pipeline.markPoll(p.now())
	p.hooks.cycle(CyclePoll, p.now().Sub(start))
	log.Debug("poll cycle complete", zap.Int("targets", len(targets)))
	return results
}

// PollTarget runs one poll for a single target.
func (p *Poller) PollTarget(ctx context.Context, target string) PollResult {
	return p.pollTarget(ctx, target, p.runtime.Policy(), p.logger)
}

// candidate is an item newer than the cursor, kept for the enqueue pass.
type candidate struct {
	id   string
	item feed.Item
}

func (p *Poller) pollTarget(ctx context.Context, target string, policy domain.Policy, log *zap.Logger) PollResult {
	log = log.With(zap.String("target", target))
	res := PollResult{Target: target}

	snap := p.state.Snapshot()
	_, known := snap.Targets[target]
	cursor := tracker.Cursor(snap, target)

	limit := max(policy.FetchLimit, 1)
	pageSize := min(limit, feed.MaxPageSize)
	pageCap := min(max((limit+pageSize-1)/pageSize, 1), maxPages)

	var (
		newest     string
		pinned     string
		candidates []candidate
		seen       = make(map[string]bool)
		token      string
	)

fetch:
	for res.Pages < pageCap {
		page, err := p.source.FetchPage(ctx, feed.PageRequest{Target: target, Cursor: token, Count: pageSize})
		p.pipeline.feedCalls.Add(1)
		p.hooks.feedRequest(target, err)
		if err != nil {
			res.err = err
			break
		}
		res.Pages++
		if pinned == "" {
			pinned = page.PinnedID
		}

		for _, it := range page.Items {
			id := it.ID()
			if !domain.IsNumericID(id) {
				log.Debug("skipping item without a usable id")
				continue
			}
			res.Seen++
			newest = domain.MaxID(newest, id)

			if id == pinned {
				// The pinned item is out of order; it must not end the scan.
				continue
			}
			if cursor != "" && domain.CompareIDs(id, cursor) <= 0 {
				// Newest-first feed: everything from here on was already seen.
				break fetch
			}
			if !seen[id] {
				seen[id] = true
				candidates = append(candidates, candidate{id: id, item: it})
			}
			if res.Seen >= limit {
				break fetch
			}
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}

	slices.SortFunc(candidates, func(a, b candidate) int { return domain.CompareIDs(a.id, b.id) })
	res.New = len(candidates)
	bootstrap := policy.SkipBacklog && (!known || cursor == "")
	now := p.now().UTC()

	err := p.state.Update(ctx, func(doc *domain.Document) error {
		tracker.Ensure(doc, target)
		if bootstrap {
			res.Bootstrap = true
		} else {
			for _, c := range candidates {
				p.admit(doc, target, c, pinned, policy, now, &res, log)
			}
		}
		tracker.AdvanceCursor(doc, target, newest)
		res.Cursor = tracker.Cursor(doc, target)
		return nil
	})
	if err != nil {
		log.Error("failed to persist poll results", zap.Error(err))
		res.Enqueued, res.Filtered, res.Duplicates = 0, 0, 0
		res.Cursor = cursor
		if res.err == nil {
			res.err = err
		}
	}
	p.hooks.enqueued(target, res.Enqueued)

	if res.err != nil {
		res.Error = res.err.Error()
		p.logFetchError(log, res.err)
	}
	if bootstrap && err == nil {
		log.Info("first poll: backlog skipped, cursor set", zap.String("cursor", res.Cursor))
	}
	log.Info("poll complete",
		zap.Int("pages", res.Pages),
		zap.Int("new", res.New),
		zap.Int("enqueued", res.Enqueued),
		zap.Int("filtered", res.Filtered),
		zap.String("cursor", res.Cursor),
	)
	return res
}

// admit applies the enqueue policy to one candidate.
func (p *Poller) admit(
	doc *domain.Document,
	target string,
	c candidate,
	pinned string,
	policy domain.Policy,
	now time.Time,
	res *PollResult,
	log *zap.Logger,
) {
	log = log.With(zap.String("item_id", c.id))
	if c.id == pinned {
		return
	}

	text := feed.CleanText(c.item.Text())
	if policy.SkipMentions && strings.Contains(text, "@") {
		res.Filtered++
		log.Debug("dropped: mentions are skipped")
		return
	}

	kind := classify.Classify(c.item)
	if !policy.Forwardable(kind) {
		res.Filtered++
		log.Info("dropped: kind is not forwarded", zap.String("kind", string(kind)))
		return
	}

	dup := queue.Enqueue(doc, domain.QueueItem{
		Target:        target,
		ItemID:        c.id,
		Kind:          kind,
		Content:       text,
		Source:        feed.Compact(c.item),
		DiscoveredAt:  now,
		Attempts:      0,
		NextAttemptAt: now,
	})
	if dup != queue.NotDuplicate {
		res.Duplicates++
		log.Debug("skipped duplicate", zap.String("reason", string(dup)))
		return
	}
	res.Enqueued++
	log.Info("enqueued", zap.String("kind", string(kind)))
}

func (p *Poller) logFetchError(log *zap.Logger, err error) {
	switch {
	case domain.IsAuthError(err):
		log.Error("feed credentials rejected or missing, target cycle aborted", zap.Error(err))
	case errors.Is(err, domain.ErrRateLimited):
		log.Warn("feed rate limited, target cycle aborted", zap.Error(err))
	default:
		log.Warn("feed request failed, target cycle aborted", zap.Error(err))
	}
}
