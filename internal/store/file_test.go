package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/store"
)

func sampleDocument() *domain.Document {
	doc := domain.NewDocument()
	doc.Targets["acct"] = &domain.TargetState{
		CursorID:     "1800000000000000123",
		ForwardedIDs: []string{"1800000000000000120"},
		FailedIDs:    []string{"1800000000000000001"},
	}
	attempted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc.Queue = append(doc.Queue, domain.QueueItem{
		Target:        "acct",
		ItemID:        "1800000000000000123",
		Kind:          domain.KindOriginal,
		Content:       "hello",
		Source:        domain.Snapshot{ID: "1800000000000000123", Text: "hello", MediaURLs: []string{"https://img/1.jpg"}},
		DiscoveredAt:  attempted.Add(-time.Minute),
		LastAttemptAt: &attempted,
		Attempts:      2,
		NextAttemptAt: attempted.Add(20 * time.Second),
		LastError:     "boom",
	})
	return doc
}

func TestFileStore_MissingFileLoadsEmpty(t *testing.T) {
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "nested", "state.yaml"), zap.NewNop())
	require.NoError(t, err)

	doc, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentVersion, doc.Version)
	assert.Empty(t, doc.Targets)
	assert.Empty(t, doc.Queue)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	fs, err := store.NewFileStore(path, zap.NewNop())
	require.NoError(t, err)

	want := sampleDocument()
	require.NoError(t, fs.Save(context.Background(), want))

	got, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.Targets, got.Targets)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, want.Queue[0].ItemID, got.Queue[0].ItemID)
	assert.True(t, want.Queue[0].NextAttemptAt.Equal(got.Queue[0].NextAttemptAt))
	assert.Equal(t, want.Queue[0].Source, got.Queue[0].Source)
	assert.Equal(t, 2, got.Queue[0].Attempts)
}

func TestFileStore_SaveKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	fs, err := store.NewFileStore(path, zap.NewNop())
	require.NoError(t, err)

	first := domain.NewDocument()
	first.Targets["acct"] = &domain.TargetState{CursorID: "1"}
	require.NoError(t, fs.Save(context.Background(), first))
	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err), "no backup before the second write")

	second := domain.NewDocument()
	second.Targets["acct"] = &domain.TargetState{CursorID: "2"}
	require.NoError(t, fs.Save(context.Background(), second))

	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(bak), `cursor_id: "1"`)
}

func TestFileStore_CorruptRestoresFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	fs, err := store.NewFileStore(path, zap.NewNop())
	require.NoError(t, err)

	good := domain.NewDocument()
	good.Targets["acct"] = &domain.TargetState{CursorID: "42"}
	require.NoError(t, fs.Save(context.Background(), good))
	require.NoError(t, fs.Save(context.Background(), good))
	require.NoError(t, os.WriteFile(path, []byte("targets: [unclosed"), 0o644))

	doc, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", doc.Targets["acct"].CursorID)

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_CorruptWithoutBackupStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets: [unclosed"), 0o644))
	fs, err := store.NewFileStore(path, zap.NewNop())
	require.NoError(t, err)

	doc, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Targets)
}
