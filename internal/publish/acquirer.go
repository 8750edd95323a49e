package publish

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Acquirer hands out one cached Executor. Concurrent first acquisitions
// share a single factory call, so a browser is never launched twice.
type Acquirer struct {
	factory Factory
	logger  *zap.Logger
	group   singleflight.Group

	mu   sync.Mutex
	exec Executor
}

// NewAcquirer returns an Acquirer building executors with factory.
func NewAcquirer(factory Factory, logger *zap.Logger) *Acquirer {
	return &Acquirer{factory: factory, logger: logger}
}

// Acquire returns the cached executor, building it on first use.
func (a *Acquirer) Acquire(ctx context.Context) (Executor, error) {
	if e := a.current(); e != nil {
		return e, nil
	}
	v, err, _ := a.group.Do("executor", func() (any, error) {
		if e := a.current(); e != nil {
			return e, nil
		}
		e, err := a.factory(ctx)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.exec = e
		a.mu.Unlock()
		a.logger.Info("publish executor ready")
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Executor), nil
}

func (a *Acquirer) current() Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exec
}

// Reset drops and closes the cached executor; the next Acquire rebuilds it.
func (a *Acquirer) Reset() {
	a.mu.Lock()
	e := a.exec
	a.exec = nil
	a.mu.Unlock()
	if e == nil {
		return
	}
	if err := e.Close(); err != nil {
		a.logger.Warn("close publish executor", zap.Error(err))
	}
}

// Close releases the cached executor.
func (a *Acquirer) Close() error {
	a.Reset()
	return nil
}
