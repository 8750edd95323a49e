package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Upstream names an external service with its own request budget.
type Upstream string

const (
	UpstreamFeed    Upstream = "feed"
	UpstreamPublish Upstream = "publish"
)

// Limiters holds one token bucket per upstream. They smooth our own request
// rate; the upstream's explicit 429 signals are handled by the queue
// processor's global pause, not here.
type Limiters struct {
	limiters map[Upstream]*rate.Limiter
}

// New creates limiters allowing the given number of requests per minute.
// A non-positive budget leaves that upstream unthrottled. Burst is one so
// requests are spread evenly across the minute.
func New(feedPerMinute, publishPerMinute int) *Limiters {
	l := &Limiters{limiters: make(map[Upstream]*rate.Limiter, 2)}
	if feedPerMinute > 0 {
		l.limiters[UpstreamFeed] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(feedPerMinute)), 1)
	}
	if publishPerMinute > 0 {
		l.limiters[UpstreamPublish] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(publishPerMinute)), 1)
	}
	return l
}

// Wait blocks until the upstream's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
// A nil receiver never blocks.
func (l *Limiters) Wait(ctx context.Context, u Upstream) error {
	if l == nil {
		return nil
	}
	lim, ok := l.limiters[u]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}
