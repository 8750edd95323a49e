package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/activity"
	"github.com/ricirt/feedrelay/internal/config"
	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/queue"
	"github.com/ricirt/feedrelay/internal/store"
	"github.com/ricirt/feedrelay/internal/tracker"
	"github.com/ricirt/feedrelay/internal/worker"
)

// Monitor is the scheduling surface the service drives.
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	RunOnce(ctx context.Context) (worker.RunOnceResult, error)
}

// PipelineService is the operator surface: thin accessors and mutators over
// the scheduler, the pipeline document and the activity log. HTTP handlers
// and the CLI depend on this service, not on the components directly.
type PipelineService struct {
	monitor  Monitor
	pipeline *worker.PipelineState
	state    *store.State
	runtime  worker.RuntimeSource
	activity *activity.Log
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipelineService(
	monitor Monitor,
	pipeline *worker.PipelineState,
	state *store.State,
	runtime worker.RuntimeSource,
	log *activity.Log,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		monitor: monitor, pipeline: pipeline, state: state, runtime: runtime,
		activity: log, logger: logger, now: time.Now,
	}
}

// Start begins monitoring. The timers outlive ctx's cancellation, so a
// request context may be passed.
func (s *PipelineService) Start(ctx context.Context) error {
	return s.monitor.Start(context.WithoutCancel(ctx))
}

func (s *PipelineService) Stop() error {
	return s.monitor.Stop()
}

// RunOnce polls and drains immediately, honouring the cycle guards.
func (s *PipelineService) RunOnce(ctx context.Context) (worker.RunOnceResult, error) {
	return s.monitor.RunOnce(ctx)
}

// Stats is the counters snapshot served to operators.
type Stats struct {
	worker.Counters
	QueueDepth    int            `json:"queue_depth"`
	QueueByTarget map[string]int `json:"queue_by_target"`
	Targets       []string       `json:"targets"`
	Enabled       bool           `json:"forwarding_enabled"`
	DryRun        bool           `json:"dry_run"`
	Mode          string         `json:"mode"`
}

func (s *PipelineService) Stats() Stats {
	doc := s.state.Snapshot()
	policy := s.runtime.Policy()
	return Stats{
		Counters:      s.pipeline.Snapshot(s.now()),
		QueueDepth:    len(doc.Queue),
		QueueByTarget: queue.DepthByTarget(doc),
		Targets:       s.runtime.Targets(),
		Enabled:       policy.Enabled,
		DryRun:        policy.DryRun,
		Mode:          string(policy.Mode),
	}
}

// Logs returns up to limit recent activity entries, newest first.
func (s *PipelineService) Logs(limit int) []activity.Entry {
	return s.activity.Recent(limit)
}

// Queue lists queued items in due order, optionally for one target.
func (s *PipelineService) Queue(target string) ([]domain.QueueItem, error) {
	target, err := s.targetFilter(target)
	if err != nil {
		return nil, err
	}
	doc := s.state.Snapshot()
	queue.SortByDue(doc)
	items := make([]domain.QueueItem, 0, len(doc.Queue))
	for _, it := range doc.Queue {
		if target == "" || it.Target == target {
			items = append(items, it)
		}
	}
	return items, nil
}

// ClearQueue drops every queued item, or only target's when non-empty.
// Cleared items are not recorded as forwarded or failed.
func (s *PipelineService) ClearQueue(ctx context.Context, target string) (int, error) {
	target, err := s.targetFilter(target)
	if err != nil {
		return 0, err
	}
	var removed int
	err = s.state.Update(ctx, func(doc *domain.Document) error {
		removed = queue.Clear(doc, target)
		if removed == 0 {
			return store.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	s.logger.Info("queue cleared by operator", zap.String("target", target), zap.Int("removed", removed))
	return removed, nil
}

// TargetStatus is the per-target view of the tracker.
type TargetStatus struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Cursor    string `json:"cursor,omitempty"`
	Queued    int    `json:"queued"`
	Forwarded int    `json:"forwarded"`
	Failed    int    `json:"failed"`
}

// Targets lists configured targets plus any target still tracked in the
// document, sorted by name.
func (s *PipelineService) Targets() []TargetStatus {
	doc := s.state.Snapshot()
	depth := queue.DepthByTarget(doc)
	active := s.runtime.Targets()

	names := doc.TargetNames()
	for _, name := range active {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	out := make([]TargetStatus, 0, len(names))
	for _, name := range names {
		ts := TargetStatus{
			Name:   name,
			Active: slices.Contains(active, name),
			Queued: depth[name],
		}
		if st := doc.Targets[name]; st != nil {
			ts.Cursor = st.CursorID
			ts.Forwarded = len(st.ForwardedIDs)
			ts.Failed = len(st.FailedIDs)
		}
		out = append(out, ts)
	}
	return out
}

// ClearFailed empties a target's failed history so its items can be
// discovered and attempted again.
func (s *PipelineService) ClearFailed(ctx context.Context, name string) (int, error) {
	name = config.NormalizeTarget(name)
	if !config.ValidTarget(name) {
		return 0, domain.ErrInvalidTarget
	}
	var cleared int
	err := s.state.Update(ctx, func(doc *domain.Document) error {
		if _, ok := doc.Targets[name]; !ok {
			return domain.ErrTargetNotFound
		}
		cleared = tracker.ClearFailed(doc, name)
		if cleared == 0 {
			return store.ErrUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("failed history cleared by operator", zap.String("target", name), zap.Int("cleared", cleared))
	return cleared, nil
}

func (s *PipelineService) targetFilter(target string) (string, error) {
	target = config.NormalizeTarget(target)
	if target != "" && !config.ValidTarget(target) {
		return "", domain.ErrInvalidTarget
	}
	return target, nil
}
