package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/ratelimiter"
	"github.com/ricirt/feedrelay/internal/upstream"
)

// RESTConfig configures the REST publisher.
type RESTConfig struct {
	BaseURL string
	Token   string
	// UserID is the acting account, required for retweets.
	UserID  string
	Timeout time.Duration
}

type createPostRequest struct {
	Text string `json:"text"`
}

type retweetRequest struct {
	TweetID string `json:"tweet_id"`
}

type createPostResponse struct {
	Data struct {
		ID        string `json:"id"`
		Retweeted bool   `json:"retweeted"`
	} `json:"data"`
}

// RESTClient publishes through a v2-style posts API with a bearer token.
// The base URL is injected from config so tests can point to a local mock.
type RESTClient struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
	limiter    *ratelimiter.Limiters
	now        func() time.Time
}

// NewRESTClient returns a RESTClient. limiter may be nil.
func NewRESTClient(cfg RESTConfig, limiter *ratelimiter.Limiters) (*RESTClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("publish token: %w", domain.ErrCredentialsMissing)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		now:        time.Now,
	}, nil
}

// Publish reposts the item (ModeRetweet) or posts its content as a new post
// (ModeRepublish).
func (c *RESTClient) Publish(ctx context.Context, r Request) (*Result, error) {
	var (
		path string
		body any
	)
	switch r.Mode {
	case domain.ModeRetweet:
		if c.userID == "" {
			return nil, fmt.Errorf("publish user id: %w", domain.ErrCredentialsMissing)
		}
		path = "/2/users/" + url.PathEscape(c.userID) + "/retweets"
		body = retweetRequest{TweetID: r.ItemID}
	case domain.ModeRepublish:
		path = "/2/tweets"
		body = createPostRequest{Text: r.Content}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, r.Mode)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx, ratelimiter.UpstreamPublish); err != nil {
		return nil, fmt.Errorf("wait for publish limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := upstream.Check(resp, respBody, c.now()); err != nil {
		return nil, err
	}

	var out createPostResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Mode == domain.ModeRetweet {
		if !out.Data.Retweeted {
			return nil, &domain.APIError{Message: "retweet not acknowledged"}
		}
		return &Result{RemoteID: r.ItemID}, nil
	}
	if out.Data.ID == "" {
		return nil, &domain.APIError{Message: "response carries no post id"}
	}
	return &Result{RemoteID: out.Data.ID}, nil
}

func (c *RESTClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// compile-time check that RESTClient implements Executor
var _ Executor = (*RESTClient)(nil)
