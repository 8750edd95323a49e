package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/store"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Queue)

	want := sampleDocument()
	require.NoError(t, s.Save(ctx, want))

	// Second save takes the upsert path.
	want.Targets["acct"].CursorID = "1800000000000000124"
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1800000000000000124", got.Targets["acct"].CursorID)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, domain.KindOriginal, got.Queue[0].Kind)
	assert.Equal(t, []string{"https://img/1.jpg"}, got.Queue[0].Source.MediaURLs)
}
