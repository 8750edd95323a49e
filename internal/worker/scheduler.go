package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
)

// Scheduler owns the two periodic triggers (poll and drain) and their
// reentrancy guards. A tick that fires while the previous cycle of the same
// kind is still running is skipped, never queued. Poll and drain may run
// concurrently with each other.
type Scheduler struct {
	poller        *Poller
	processor     *Processor
	pipeline      *PipelineState
	pollInterval  time.Duration
	drainInterval time.Duration
	hooks         Hooks
	logger        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
	cycles sync.WaitGroup
}

func NewScheduler(
	poller *Poller,
	processor *Processor,
	pipeline *PipelineState,
	pollInterval, drainInterval time.Duration,
	hooks Hooks,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		poller: poller, processor: processor, pipeline: pipeline,
		pollInterval: pollInterval, drainInterval: drainInterval,
		hooks: hooks, logger: logger,
	}
}

// Pipeline exposes the shared state for the operator surface.
func (s *Scheduler) Pipeline() *PipelineState { return s.pipeline }

// Start begins monitoring: a poll runs immediately, then both timers tick
// until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return domain.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pipeline.monitoring.Store(true)

	s.loops.Add(2)
	go s.loop(ctx, CyclePoll, s.pollInterval, true)
	go s.loop(ctx, CycleDrain, s.drainInterval, false)

	s.logger.Info("monitoring started",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Duration("drain_interval", s.drainInterval))
	return nil
}

// Stop halts the timers. Cycles already running finish on their own.
//
// The lock is held until the loops have exited, so a concurrent Start waits
// instead of racing the shutdown.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return domain.ErrNotRunning
	}

	s.cancel()
	s.loops.Wait()
	s.cancel = nil
	s.pipeline.monitoring.Store(false)
	s.logger.Info("monitoring stopped")
	return nil
}

// Wait blocks until all in-flight cycles have returned.
func (s *Scheduler) Wait() { s.cycles.Wait() }

func (s *Scheduler) loop(ctx context.Context, kind string, interval time.Duration, immediate bool) {
	defer s.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		s.trigger(ctx, kind)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, kind)
		}
	}
}

// trigger starts a cycle in the background unless one of the same kind is
// still running. The cycle is detached from ctx: stopping the monitor only
// prevents new cycles.
func (s *Scheduler) trigger(ctx context.Context, kind string) {
	run := func(cctx context.Context) { s.poller.Poll(cctx) }
	begin, end := s.pipeline.tryBeginPoll, s.pipeline.endPoll
	if kind == CycleDrain {
		run = func(cctx context.Context) { s.processor.Drain(cctx) }
		begin, end = s.pipeline.tryBeginDrain, s.pipeline.endDrain
	}

	if !begin() {
		s.hooks.cycleSkipped(kind)
		s.logger.Info("tick skipped: previous cycle still running", zap.String("cycle", kind))
		return
	}
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		defer end()
		defer s.recoverCycle(kind)
		run(context.WithoutCancel(ctx))
	}()
}

func (s *Scheduler) recoverCycle(kind string) {
	if r := recover(); r != nil {
		s.logger.Error("cycle panicked", zap.String("cycle", kind), zap.Any("panic", r))
	}
}

// RunPoll runs one poll cycle synchronously, honouring the poll guard.
func (s *Scheduler) RunPoll(ctx context.Context) ([]PollResult, error) {
	if !s.pipeline.tryBeginPoll() {
		s.hooks.cycleSkipped(CyclePoll)
		return nil, domain.ErrCycleInProgress
	}
	defer s.pipeline.endPoll()
	s.cycles.Add(1)
	defer s.cycles.Done()
	return s.poller.Poll(ctx), nil
}

// RunDrain runs one drain tick synchronously, honouring the drain guard.
func (s *Scheduler) RunDrain(ctx context.Context) (DrainResult, error) {
	if !s.pipeline.tryBeginDrain() {
		s.hooks.cycleSkipped(CycleDrain)
		return DrainResult{}, domain.ErrCycleInProgress
	}
	defer s.pipeline.endDrain()
	s.cycles.Add(1)
	defer s.cycles.Done()
	return s.processor.Drain(ctx), nil
}

// RunOnceResult reports a manual run. A kind whose guard was held reports
// Skipped instead of results.
type RunOnceResult struct {
	Poll         []PollResult `json:"poll,omitempty"`
	PollSkipped  bool         `json:"poll_skipped,omitempty"`
	Drain        *DrainResult `json:"drain,omitempty"`
	DrainSkipped bool         `json:"drain_skipped,omitempty"`
}

// RunOnce polls then drains, each under its own guard. It fails with
// ErrCycleInProgress only when neither could run.
func (s *Scheduler) RunOnce(ctx context.Context) (RunOnceResult, error) {
	var out RunOnceResult

	poll, err := s.RunPoll(ctx)
	if err != nil {
		out.PollSkipped = true
		s.logger.Info("manual run: poll already in progress, skipped")
	}
	out.Poll = poll

	drain, err := s.RunDrain(ctx)
	if err != nil {
		out.DrainSkipped = true
		s.logger.Info("manual run: drain already in progress, skipped")
	} else {
		out.Drain = &drain
	}

	if out.PollSkipped && out.DrainSkipped {
		return out, domain.ErrCycleInProgress
	}
	return out, nil
}
