package worker

import (
	"context"
	"time"
)

// SetClock replaces the processor's time source and sleeper.
func (p *Processor) SetClock(now func() time.Time, sleep func(context.Context, time.Duration)) {
	p.now = now
	p.sleep = sleep
}

// SetClock replaces the poller's time source.
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}
