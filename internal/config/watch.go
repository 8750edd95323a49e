package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
)

// RuntimeStore serves the current Runtime to the pipeline. Reads are
// lock-free; a reload swaps the whole value.
type RuntimeStore struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Runtime]
}

// NewRuntimeStore loads path once. A missing or invalid file at startup is
// an error.
func NewRuntimeStore(path string, logger *zap.Logger) (*RuntimeStore, error) {
	rt, err := LoadRuntime(path)
	if err != nil {
		return nil, err
	}
	s := &RuntimeStore{path: path, logger: logger}
	s.current.Store(rt)
	return s, nil
}

// NewStaticRuntime wraps a fixed Runtime; Watch is a no-op for it.
func NewStaticRuntime(rt *Runtime) *RuntimeStore {
	s := &RuntimeStore{logger: zap.NewNop()}
	s.current.Store(rt)
	return s
}

// Runtime returns the current runtime configuration.
func (s *RuntimeStore) Runtime() *Runtime { return s.current.Load() }

// Targets returns the active target names.
func (s *RuntimeStore) Targets() []string { return s.current.Load().ActiveTargets() }

// Policy returns the current forwarding policy.
func (s *RuntimeStore) Policy() domain.Policy { return s.current.Load().Policy() }

// Reload re-reads the file. On error the previous runtime is kept.
func (s *RuntimeStore) Reload() error {
	rt, err := LoadRuntime(s.path)
	if err != nil {
		return err
	}
	s.current.Store(rt)
	return nil
}

// Watch reloads the file whenever it changes, until ctx is cancelled. The
// parent directory is watched so editors that replace the file by rename
// are picked up too.
func (s *RuntimeStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.logger.Info("watching runtime config", zap.String("path", s.path))

	target := filepath.Clean(s.path)
	// Editors emit bursts of events; reload once things settle.
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(200 * time.Millisecond)
			}
		case <-debounce:
			debounce = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("runtime config reload failed, keeping previous", zap.Error(err))
				continue
			}
			rt := s.Runtime()
			s.logger.Info("runtime config reloaded",
				zap.Strings("targets", rt.ActiveTargets()),
				zap.Bool("forwarding_enabled", rt.Forwarding.Enabled),
				zap.Bool("dry_run", rt.Forwarding.DryRun),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("runtime config watch error", zap.Error(err))
		}
	}
}
