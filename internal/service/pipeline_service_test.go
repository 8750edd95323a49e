package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/activity"
	"github.com/ricirt/feedrelay/internal/config"
	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/service"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/worker"
)

// fakeMonitor records calls and mimics the scheduler's running flag.
type fakeMonitor struct {
	running bool
	runs    int
	ctxErr  error
}

func (m *fakeMonitor) Start(ctx context.Context) error {
	if m.running {
		return domain.ErrAlreadyRunning
	}
	m.ctxErr = ctx.Err()
	m.running = true
	return nil
}

func (m *fakeMonitor) Stop() error {
	if !m.running {
		return domain.ErrNotRunning
	}
	m.running = false
	return nil
}

func (m *fakeMonitor) RunOnce(context.Context) (worker.RunOnceResult, error) {
	m.runs++
	return worker.RunOnceResult{Drain: &worker.DrainResult{}}, nil
}

func sampleDoc() *domain.Document {
	doc := domain.NewDocument()
	doc.Targets["alice"] = &domain.TargetState{CursorID: "100", ForwardedIDs: []string{"100", "99"}, FailedIDs: []string{"98"}}
	doc.Targets["bob"] = &domain.TargetState{CursorID: "7"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc.Queue = []domain.QueueItem{
		{Target: "alice", ItemID: "101", Kind: domain.KindOriginal, NextAttemptAt: at.Add(time.Minute)},
		{Target: "bob", ItemID: "8", Kind: domain.KindOriginal, NextAttemptAt: at},
		{Target: "alice", ItemID: "102", Kind: domain.KindOriginal, NextAttemptAt: at},
	}
	return doc
}

func newService(t *testing.T) (*service.PipelineService, *fakeMonitor, *store.MemoryStore, *activity.Log) {
	t.Helper()
	mem := store.NewMemoryStore(sampleDoc())
	st, err := store.Open(context.Background(), mem)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	rt := config.NewStaticRuntime(&config.Runtime{
		Targets:    []config.TargetConfig{{Name: "alice"}, {Name: "carol"}},
		Forwarding: config.ForwardingConfig{Enabled: true, DryRun: true, Mode: "retweet"},
	})
	mon := &fakeMonitor{}
	log := activity.New(10)
	svc := service.NewPipelineService(mon, worker.NewPipelineState(), st, rt, log, zap.NewNop())
	return svc, mon, mem, log
}

func TestPipelineService_StartStop(t *testing.T) {
	svc, mon, _, _ := newService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if mon.ctxErr != nil {
		t.Fatal("expected the monitor context to survive request cancellation")
	}
	if err := svc.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestPipelineService_RunOnce(t *testing.T) {
	svc, mon, _, _ := newService(t)
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if mon.runs != 1 {
		t.Fatalf("expected 1 run, got %d", mon.runs)
	}
}

func TestPipelineService_Stats(t *testing.T) {
	svc, _, _, _ := newService(t)

	stats := svc.Stats()
	if stats.QueueDepth != 3 {
		t.Fatalf("expected queue depth 3, got %d", stats.QueueDepth)
	}
	if stats.QueueByTarget["alice"] != 2 || stats.QueueByTarget["bob"] != 1 {
		t.Fatalf("unexpected per-target depth: %v", stats.QueueByTarget)
	}
	if !stats.Enabled || !stats.DryRun || stats.Mode != "retweet" {
		t.Fatalf("unexpected policy summary: %+v", stats)
	}
	if len(stats.Targets) != 2 {
		t.Fatalf("expected 2 active targets, got %v", stats.Targets)
	}
}

func TestPipelineService_Queue(t *testing.T) {
	svc, _, _, _ := newService(t)

	items, err := svc.Queue("")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(items) != 3 || items[2].ItemID != "101" {
		t.Fatalf("expected due order with 101 last, got %+v", items)
	}

	items, err = svc.Queue("@alice")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items for alice, got %d", len(items))
	}

	if _, err := svc.Queue("not a name"); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestPipelineService_ClearQueue(t *testing.T) {
	svc, _, mem, _ := newService(t)
	ctx := context.Background()

	n, err := svc.ClearQueue(ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("clear alice: n=%d err=%v", n, err)
	}
	saved := mem.Saved()
	if len(saved.Queue) != 1 || saved.Queue[0].Target != "bob" {
		t.Fatalf("expected only bob's item left, got %+v", saved.Queue)
	}
	if len(saved.Targets["alice"].FailedIDs) != 1 {
		t.Fatal("clearing the queue must not touch the failed history")
	}

	n, err = svc.ClearQueue(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("clear all: n=%d err=%v", n, err)
	}

	saves := mem.Saves()
	if n, _ := svc.ClearQueue(ctx, ""); n != 0 || mem.Saves() != saves {
		t.Fatal("clearing an empty queue should not write the document")
	}
}

func TestPipelineService_Targets(t *testing.T) {
	svc, _, _, _ := newService(t)

	got := svc.Targets()
	want := []service.TargetStatus{
		{Name: "alice", Active: true, Cursor: "100", Queued: 2, Forwarded: 2, Failed: 1},
		{Name: "bob", Active: false, Cursor: "7", Queued: 1},
		{Name: "carol", Active: true},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d targets, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("target %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestPipelineService_ClearFailed(t *testing.T) {
	svc, _, mem, _ := newService(t)
	ctx := context.Background()

	n, err := svc.ClearFailed(ctx, "alice")
	if err != nil || n != 1 {
		t.Fatalf("clear failed: n=%d err=%v", n, err)
	}
	if len(mem.Saved().Targets["alice"].FailedIDs) != 0 {
		t.Fatal("expected failed history to be persisted empty")
	}

	if _, err := svc.ClearFailed(ctx, "nobody"); !errors.Is(err, domain.ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
	if _, err := svc.ClearFailed(ctx, "bad-name!"); !errors.Is(err, domain.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestPipelineService_Logs(t *testing.T) {
	svc, _, _, log := newService(t)
	log.Append(activity.Entry{Message: "first"})
	log.Append(activity.Entry{Message: "second"})

	entries := svc.Logs(1)
	if len(entries) != 1 || entries[0].Message != "second" {
		t.Fatalf("expected newest entry only, got %+v", entries)
	}
}
