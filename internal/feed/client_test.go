package feed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/feed"
)

func newClient(t *testing.T, h http.HandlerFunc) *feed.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return feed.NewClient(feed.Config{BaseURL: srv.URL, APIKey: "key", Timeout: 5 * time.Second}, nil)
}

func TestClient_FetchPage(t *testing.T) {
	var gotQuery, gotKey string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		assert.Equal(t, "/twitter/user/last_tweets", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"pin_tweet": {"id": "5"},
				"tweets": [
					{"id": "1800000000000000123", "text": "newest"},
					{"id": 1799999999999999999, "text": "older"}
				]
			},
			"has_next_page": true,
			"next_cursor": "abc"
		}`))
	})

	page, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "acct", Cursor: "prev", Count: 20})
	require.NoError(t, err)

	assert.Equal(t, "key", gotKey)
	assert.Contains(t, gotQuery, "userName=acct")
	assert.Contains(t, gotQuery, "cursor=prev")
	require.Len(t, page.Items, 2)
	assert.Equal(t, "1800000000000000123", page.Items[0].ID())
	assert.Equal(t, "1799999999999999999", page.Items[1].ID(), "numeric ids keep full precision")
	assert.Equal(t, "5", page.PinnedID)
	assert.Equal(t, "abc", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestClient_FetchPage_AlternateEnvelope(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tweets": [{"id_str": "9"}], "nextCursor": ""}`))
	})

	page, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "acct"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
}

func TestClient_FetchPage_APIError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "msg": "user not found"}`))
	})

	_, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "ghost"})
	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "user not found", apiErr.Message)
}

func TestClient_FetchPage_Unauthorized(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "acct"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestClient_FetchPage_RateLimited(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "acct"})
	rl, ok := domain.AsRateLimit(err)
	require.True(t, ok)
	assert.False(t, rl.ResetAt.IsZero())
}

func TestClient_FetchPage_MissingKey(t *testing.T) {
	c := feed.NewClient(feed.Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.FetchPage(context.Background(), feed.PageRequest{Target: "acct"})
	assert.True(t, errors.Is(err, domain.ErrCredentialsMissing))
}
