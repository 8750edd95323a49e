package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/feed"
	"github.com/ricirt/feedrelay/internal/worker"
)

func newScheduler(f *pipelineFixture, hooks worker.Hooks) *worker.Scheduler {
	return worker.NewScheduler(f.poller, f.processor, f.pipeline, time.Hour, time.Hour, hooks, zap.NewNop())
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t, nil, livePolicy(), "acct")
	s := newScheduler(f, worker.Hooks{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrAlreadyRunning)
	assert.True(t, f.pipeline.Monitoring())

	// Start polls right away rather than waiting a full interval.
	require.Eventually(t, func() bool { return f.source.requestCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	s.Wait()
	assert.False(t, f.pipeline.Monitoring())
	assert.ErrorIs(t, s.Stop(), domain.ErrNotRunning)

	// It can be started again after a stop.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	s.Wait()
}

func TestScheduler_StartDuringStopKeepsStateConsistent(t *testing.T) {
	f := newFixture(t, nil, livePolicy(), "acct")
	s := newScheduler(f, worker.Hooks{})

	for range 20 {
		require.NoError(t, s.Start(context.Background()))

		var wg sync.WaitGroup
		var startErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
		}()
		go func() {
			defer wg.Done()
			startErr = s.Start(context.Background())
		}()
		wg.Wait()

		// Whatever the interleaving, the flag matches the scheduler.
		running := f.pipeline.Monitoring()
		err := s.Stop()
		if running {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, domain.ErrNotRunning)
		}
		if startErr != nil {
			require.ErrorIs(t, startErr, domain.ErrAlreadyRunning)
		}
		assert.False(t, f.pipeline.Monitoring())
	}
	s.Wait()
}

func TestScheduler_GuardsRejectOverlappingCycles(t *testing.T) {
	f := newFixture(t, docWithQueue(queued("acct", "1", t0)), livePolicy(), "acct")
	f.source.block = make(chan struct{})
	f.source.setPage("acct", "", &feed.Page{Items: []feed.Item{item("5", "x")}})

	var skipped []string
	s := newScheduler(f, worker.Hooks{OnCycleSkipped: func(kind string) { skipped = append(skipped, kind) }})

	done := make(chan []worker.PollResult)
	go func() {
		res, _ := s.RunPoll(context.Background())
		done <- res
	}()
	require.Eventually(t, f.pipeline.Polling, time.Second, 5*time.Millisecond)

	_, err := s.RunPoll(context.Background())
	assert.ErrorIs(t, err, domain.ErrCycleInProgress)

	// A drain is not blocked by a running poll.
	drain, err := s.RunDrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, drain.Forwarded)

	out, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, out.PollSkipped)
	assert.False(t, out.DrainSkipped)
	require.NotNil(t, out.Drain)

	close(f.source.block)
	res := <-done
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Enqueued)
	assert.False(t, f.pipeline.Polling())
	assert.Equal(t, []string{worker.CyclePoll, worker.CyclePoll}, skipped)
}

func TestScheduler_RunOnce(t *testing.T) {
	f := newFixture(t, nil, livePolicy(), "acct")
	f.source.setPage("acct", "", &feed.Page{Items: []feed.Item{item("7", "x")}})
	s := newScheduler(f, worker.Hooks{})

	out, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Poll, 1)
	assert.Equal(t, 1, out.Poll[0].Enqueued)
	require.NotNil(t, out.Drain)
	assert.Equal(t, 1, out.Drain.Forwarded)
	assert.Empty(t, f.queueIDs())

	c := f.pipeline.Snapshot(f.clock.Now())
	assert.NotNil(t, c.LastPollAt)
	assert.NotNil(t, c.LastDrainAt)
	assert.False(t, c.Monitoring)
}
