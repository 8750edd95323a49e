package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ricirt/feedrelay/internal/domain"
)

// FileStore keeps the document in a YAML file. Writes go through a temp file,
// fsync and rename, and the previous version is kept as <path>.bak.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created if missing.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Load reads the document. A file that does not parse is moved to the
// quarantine directory and the .bak copy is used instead, if it parses.
func (s *FileStore) Load(_ context.Context) (*domain.Document, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	doc, parseErr := decodeYAML(content)
	if parseErr == nil {
		return doc, nil
	}

	s.logger.Error("state file is corrupt", zap.String("path", s.path), zap.Error(parseErr))
	quarantined, err := s.quarantine()
	if err != nil {
		return nil, err
	}
	s.logger.Warn("quarantined corrupt state file", zap.String("to", quarantined))

	bak, err := os.ReadFile(s.path + ".bak")
	if err != nil {
		s.logger.Warn("no usable backup, starting from an empty document", zap.Error(err))
		return domain.NewDocument(), nil
	}
	doc, err = decodeYAML(bak)
	if err != nil {
		s.logger.Warn("backup is also corrupt, starting from an empty document", zap.Error(err))
		return domain.NewDocument(), nil
	}
	if err := os.WriteFile(s.path, bak, 0o644); err != nil {
		return nil, fmt.Errorf("restore from backup: %w", err)
	}
	s.logger.Info("restored state from backup", zap.String("path", s.path))
	return doc, nil
}

// Save writes doc atomically.
func (s *FileStore) Save(_ context.Context, doc *domain.Document) error {
	content, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".feedrelay-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if _, err := decodeYAML(written); err != nil {
		return fmt.Errorf("yaml validation failed: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) quarantine() (string, error) {
	dir := filepath.Join(filepath.Dir(s.path), "quarantine")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(s.path), time.Now().Format("20060102T150405"))
	dst := filepath.Join(dir, name)
	if err := os.Rename(s.path, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dst, nil
}

func decodeYAML(content []byte) (*domain.Document, error) {
	doc := domain.NewDocument()
	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, err
	}
	doc.Normalize()
	return doc, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
