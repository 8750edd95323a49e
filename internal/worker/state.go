package worker

import (
	"sync"
	"sync/atomic"
	"time"
)

// pauseLogEvery throttles the "queue is rate limited" log line.
const pauseLogEvery = 15 * time.Second

// PipelineState is the process-wide mutable state shared by the scheduler,
// poller and processor: reentrancy flags, the global rate-limit pause and
// external call counters. It is owned by the Scheduler and handed to the
// other components so tests can inspect and preset it.
type PipelineState struct {
	monitoring atomic.Bool
	polling    atomic.Bool
	draining   atomic.Bool

	feedCalls    atomic.Int64
	publishCalls atomic.Int64

	mu               sync.Mutex
	rateLimitedUntil time.Time
	lastPauseLog     time.Time
	enabledSeen      bool
	prevEnabled      bool
	lastPollAt       time.Time
	lastDrainAt      time.Time
}

// NewPipelineState returns an idle state.
func NewPipelineState() *PipelineState { return &PipelineState{} }

func (s *PipelineState) tryBeginPoll() bool  { return s.polling.CompareAndSwap(false, true) }
func (s *PipelineState) endPoll()            { s.polling.Store(false) }
func (s *PipelineState) tryBeginDrain() bool { return s.draining.CompareAndSwap(false, true) }
func (s *PipelineState) endDrain()           { s.draining.Store(false) }

// Polling reports whether a poll cycle is in flight.
func (s *PipelineState) Polling() bool { return s.polling.Load() }

// Draining reports whether a drain cycle is in flight.
func (s *PipelineState) Draining() bool { return s.draining.Load() }

// Monitoring reports whether the timers are running.
func (s *PipelineState) Monitoring() bool { return s.monitoring.Load() }

// RateLimitedUntil returns the global resume-not-before time.
func (s *PipelineState) RateLimitedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimitedUntil
}

// PauseUntil extends the global rate-limit pause to t. It never shortens it.
func (s *PipelineState) PauseUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.rateLimitedUntil) {
		s.rateLimitedUntil = t
	}
}

// paused reports whether now is inside the pause, and whether the caller
// should log about it.
func (s *PipelineState) paused(now time.Time) (paused, shouldLog bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !now.Before(s.rateLimitedUntil) {
		return false, false
	}
	if now.Sub(s.lastPauseLog) >= pauseLogEvery {
		s.lastPauseLog = now
		return true, true
	}
	return true, false
}

// observeEnabled records the forwarding flag seen by a drain and reports
// whether forwarding has just been switched on since the previous drain.
func (s *PipelineState) observeEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	just := s.enabledSeen && !s.prevEnabled && enabled
	s.enabledSeen = true
	s.prevEnabled = enabled
	return just
}

func (s *PipelineState) markPoll(t time.Time) {
	s.mu.Lock()
	s.lastPollAt = t
	s.mu.Unlock()
}

func (s *PipelineState) markDrain(t time.Time) {
	s.mu.Lock()
	s.lastDrainAt = t
	s.mu.Unlock()
}

// Counters is a snapshot of PipelineState for the operator surface.
type Counters struct {
	Monitoring       bool       `json:"monitoring"`
	Polling          bool       `json:"polling"`
	Draining         bool       `json:"draining"`
	FeedCalls        int64      `json:"feed_calls"`
	PublishCalls     int64      `json:"publish_calls"`
	RateLimitedUntil *time.Time `json:"rate_limited_until,omitempty"`
	LastPollAt       *time.Time `json:"last_poll_at,omitempty"`
	LastDrainAt      *time.Time `json:"last_drain_at,omitempty"`
}

// Snapshot returns the current counters.
func (s *PipelineState) Snapshot(now time.Time) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counters{
		Monitoring:   s.monitoring.Load(),
		Polling:      s.polling.Load(),
		Draining:     s.draining.Load(),
		FeedCalls:    s.feedCalls.Load(),
		PublishCalls: s.publishCalls.Load(),
	}
	if s.rateLimitedUntil.After(now) {
		t := s.rateLimitedUntil
		c.RateLimitedUntil = &t
	}
	if !s.lastPollAt.IsZero() {
		t := s.lastPollAt
		c.LastPollAt = &t
	}
	if !s.lastDrainAt.IsZero() {
		t := s.lastDrainAt
		c.LastDrainAt = &t
	}
	return c
}
