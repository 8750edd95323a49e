package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/feed"
	"github.com/ricirt/feedrelay/internal/publish"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/worker"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a manually advanced time source. Sleep advances it.
type clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *clock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// fakeRuntime is a fixed RuntimeSource.
type fakeRuntime struct {
	mu      sync.Mutex
	targets []string
	policy  domain.Policy
}

func (r *fakeRuntime) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targets...)
}

func (r *fakeRuntime) Policy() domain.Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

func (r *fakeRuntime) set(fn func(p *domain.Policy)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.policy)
}

func livePolicy() domain.Policy {
	return domain.Policy{Enabled: true, Mode: domain.ModeRetweet, FetchLimit: 20}
}

// fakeSource serves scripted pages per target. Pages are keyed by the
// pagination token ("" for the first page).
type fakeSource struct {
	mu       sync.Mutex
	pages    map[string]map[string]*feed.Page
	errs     map[string]map[string]error
	requests []feed.PageRequest
	block    chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages: make(map[string]map[string]*feed.Page),
		errs:  make(map[string]map[string]error),
	}
}

func (f *fakeSource) setPage(target, token string, page *feed.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[target] == nil {
		f.pages[target] = make(map[string]*feed.Page)
	}
	f.pages[target][token] = page
}

func (f *fakeSource) setErr(target, token string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs[target] == nil {
		f.errs[target] = make(map[string]error)
	}
	f.errs[target][token] = err
}

func (f *fakeSource) FetchPage(ctx context.Context, req feed.PageRequest) (*feed.Page, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Target][req.Cursor]; err != nil {
		return nil, err
	}
	if page, ok := f.pages[req.Target][req.Cursor]; ok {
		return page, nil
	}
	return &feed.Page{}, nil
}

func (f *fakeSource) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeAcquirer hands out a fixed executor or a fixed error.
type fakeAcquirer struct {
	mu       sync.Mutex
	exec     publish.Executor
	err      error
	acquires int
	resets   int
}

func (a *fakeAcquirer) Acquire(context.Context) (publish.Executor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acquires++
	if a.err != nil {
		return nil, a.err
	}
	return a.exec, nil
}

func (a *fakeAcquirer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

var errBoom = errors.New("boom")

func item(id, text string) feed.Item {
	return feed.Item{"id": id, "text": text}
}

func reply(id string) feed.Item {
	return feed.Item{"id": id, "text": "@someone thanks", "isReply": true}
}

func openState(t *testing.T, doc *domain.Document) (*store.State, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(doc)
	st, err := store.Open(context.Background(), mem)
	require.NoError(t, err)
	return st, mem
}

func queued(target, id string, next time.Time) domain.QueueItem {
	return domain.QueueItem{
		Target:        target,
		ItemID:        id,
		Kind:          domain.KindOriginal,
		Content:       "content " + id,
		DiscoveredAt:  t0,
		NextAttemptAt: next,
	}
}

func docWithQueue(items ...domain.QueueItem) *domain.Document {
	doc := domain.NewDocument()
	for _, it := range items {
		if doc.Targets[it.Target] == nil {
			doc.Targets[it.Target] = &domain.TargetState{}
		}
		doc.Queue = append(doc.Queue, it)
	}
	return doc
}

type pipelineFixture struct {
	state     *store.State
	mem       *store.MemoryStore
	runtime   *fakeRuntime
	source    *fakeSource
	exec      *publish.MockExecutor
	acquirer  *fakeAcquirer
	pipeline  *worker.PipelineState
	clock     *clock
	poller    *worker.Poller
	processor *worker.Processor
}

func newFixture(t *testing.T, doc *domain.Document, policy domain.Policy, targets ...string) *pipelineFixture {
	t.Helper()
	if doc == nil {
		doc = domain.NewDocument()
	}
	st, mem := openState(t, doc)
	f := &pipelineFixture{
		state:    st,
		mem:      mem,
		runtime:  &fakeRuntime{targets: targets, policy: policy},
		source:   newFakeSource(),
		exec:     publish.NewMockExecutor(),
		pipeline: worker.NewPipelineState(),
		clock:    newClock(),
	}
	f.acquirer = &fakeAcquirer{exec: f.exec}
	f.poller = worker.NewPoller(f.source, st, f.runtime, f.pipeline, worker.Hooks{}, zap.NewNop())
	f.poller.SetClock(f.clock.Now)
	f.processor = worker.NewProcessor(st, f.runtime, f.acquirer, f.pipeline,
		worker.ProcessorConfig{MaxAttempts: 5, DisabledDeferral: 15 * time.Second}, worker.Hooks{}, zap.NewNop())
	f.processor.SetClock(f.clock.Now, f.clock.Sleep)
	return f
}

func (f *pipelineFixture) queueIDs() []string {
	var ids []string
	for _, it := range f.state.Snapshot().Queue {
		ids = append(ids, it.Target+"/"+it.ItemID)
	}
	return ids
}
