package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/publish"
)

func newREST(t *testing.T, srv *httptest.Server, userID string) *publish.RESTClient {
	t.Helper()
	c, err := publish.NewRESTClient(publish.RESTConfig{
		BaseURL: srv.URL,
		Token:   "tok",
		UserID:  userID,
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestRESTClient_Republish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello world", body["text"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"555","text":"hello world"}}`))
	}))
	defer srv.Close()

	res, err := newREST(t, srv, "").Publish(context.Background(), publish.Request{
		Mode: domain.ModeRepublish, Target: "acct", ItemID: "1", Content: "hello world",
	})
	require.NoError(t, err)
	assert.Equal(t, "555", res.RemoteID)
}

func TestRESTClient_Retweet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/42/retweets", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1800000000000000123", body["tweet_id"])
		_, _ = w.Write([]byte(`{"data":{"retweeted":true}}`))
	}))
	defer srv.Close()

	res, err := newREST(t, srv, "42").Publish(context.Background(), publish.Request{
		Mode: domain.ModeRetweet, Target: "acct", ItemID: "1800000000000000123",
	})
	require.NoError(t, err)
	assert.Equal(t, "1800000000000000123", res.RemoteID)
}

func TestRESTClient_RetweetWithoutUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := newREST(t, srv, "").Publish(context.Background(), publish.Request{Mode: domain.ModeRetweet, ItemID: "1"})
	assert.ErrorIs(t, err, domain.ErrCredentialsMissing)
}

func TestRESTClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		check   func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, domain.IsAuthError(err))
			},
		},
		{
			name:    "rate limited with reset",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				rl, ok := domain.AsRateLimit(err)
				require.True(t, ok)
				assert.False(t, rl.ResetAt.IsZero())
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var he *domain.HTTPError
				require.True(t, errors.As(err, &he))
				assert.Equal(t, http.StatusBadGateway, he.StatusCode)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newREST(t, srv, "42").Publish(context.Background(), publish.Request{
				Mode: domain.ModeRepublish, ItemID: "1", Content: "x",
			})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestRESTClient_MissingToken(t *testing.T) {
	_, err := publish.NewRESTClient(publish.RESTConfig{BaseURL: "http://localhost"}, nil)
	assert.ErrorIs(t, err, domain.ErrCredentialsMissing)
}

func TestRESTClient_InvalidMode(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newREST(t, srv, "42").Publish(context.Background(), publish.Request{Mode: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}
