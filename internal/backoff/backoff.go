// Package backoff computes retry schedules for queued items.
package backoff

import (
	"math"
	"time"

	"github.com/ricirt/feedrelay/internal/domain"
)

const (
	// Base is the delay unit of the exponential schedule.
	Base = 5 * time.Second
	// Max caps the generic delay.
	Max = 300 * time.Second
	// RateLimitFloor is the minimum wait after a rate limit with no reset hint.
	RateLimitFloor = 60 * time.Second
	// ResetMargin is added to an upstream-signalled reset time.
	ResetMargin = 2 * time.Second
)

// Strategy computes the delay before the next attempt.
type Strategy interface {
	Delay(attempts int) time.Duration
}

// Exponential is Base·2^attempts clamped to [Base, Max].
type Exponential struct{}

// Delay returns the generic retry delay after attempts failures.
func (Exponential) Delay(attempts int) time.Duration {
	return Delay(attempts)
}

// Delay returns clamp(5s, 300s, round(5s · 2^attempts)).
func Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	secs := math.Round(Base.Seconds() * math.Pow(2, float64(attempts)))
	if secs >= Max.Seconds() {
		return Max
	}
	if d := time.Duration(secs) * time.Second; d > Base {
		return d
	}
	return Base
}

// Schedule is the outcome of Next.
type Schedule struct {
	At          time.Time
	RateLimited bool
}

// Next returns when an item that has failed attempts times with err may be
// tried again. A rate-limit error prefers the upstream reset time.
func Next(now time.Time, attempts int, err error) Schedule {
	generic := Delay(attempts)
	rl, ok := domain.AsRateLimit(err)
	if !ok {
		return Schedule{At: now.Add(generic)}
	}
	if !rl.ResetAt.IsZero() {
		at := rl.ResetAt.Add(ResetMargin)
		if at.Before(now) {
			at = now.Add(ResetMargin)
		}
		return Schedule{At: at, RateLimited: true}
	}
	return Schedule{At: now.Add(max(RateLimitFloor, generic)), RateLimited: true}
}
