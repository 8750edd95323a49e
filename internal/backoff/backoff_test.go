package backoff_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ricirt/feedrelay/internal/backoff"
	"github.com/ricirt/feedrelay/internal/domain"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 5 * time.Second},
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{6, 300 * time.Second},
		{60, 300 * time.Second},
		{5000, 300 * time.Second},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("attempts=%d", tc.attempts), func(t *testing.T) {
			assert.Equal(t, tc.want, backoff.Delay(tc.attempts))
		})
	}
}

func TestDelay_MonotonicUpToCeiling(t *testing.T) {
	prev := time.Duration(0)
	for n := 0; n < 20; n++ {
		d := backoff.Delay(n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, backoff.Max)
		prev = d
	}
}

func TestNext_Generic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := backoff.Next(now, 2, errors.New("boom"))
	assert.False(t, s.RateLimited)
	assert.Equal(t, now.Add(20*time.Second), s.At)
}

func TestNext_RateLimitWithReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := fmt.Errorf("publish: %w", &domain.RateLimitError{ResetAt: now.Add(30 * time.Second)})

	s := backoff.Next(now, 1, err)
	assert.True(t, s.RateLimited)
	assert.Equal(t, now.Add(32*time.Second), s.At)
}

func TestNext_RateLimitResetInPast(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := &domain.RateLimitError{ResetAt: now.Add(-time.Minute)}

	s := backoff.Next(now, 1, err)
	assert.True(t, s.RateLimited)
	assert.Equal(t, now.Add(backoff.ResetMargin), s.At)
}

func TestNext_RateLimitWithoutReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := backoff.Next(now, 1, &domain.RateLimitError{})
	assert.True(t, s.RateLimited)
	assert.Equal(t, now.Add(60*time.Second), s.At)

	s = backoff.Next(now, 6, &domain.RateLimitError{})
	assert.Equal(t, now.Add(300*time.Second), s.At)
}

func TestExponential_ImplementsStrategy(t *testing.T) {
	var s backoff.Strategy = backoff.Exponential{}
	assert.Equal(t, 40*time.Second, s.Delay(3))
}
