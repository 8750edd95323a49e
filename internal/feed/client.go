package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/ratelimiter"
	"github.com/ricirt/feedrelay/internal/upstream"
)

const maxBodyBytes = 10 << 20

// Config configures the HTTP feed client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches user timelines from a twitterapi.io-compatible JSON API.
// The base URL is injected from config so tests can point to a local mock.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimiter.Limiters
	now        func() time.Time
}

// NewClient builds a Client. limiter may be nil.
func NewClient(cfg Config, limiter *ratelimiter.Limiters) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		now:        time.Now,
	}
}

// FetchPage requests one page of the target's recent items.
func (c *Client) FetchPage(ctx context.Context, pr PageRequest) (*Page, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("feed api key: %w", domain.ErrCredentialsMissing)
	}
	if err := c.limiter.Wait(ctx, ratelimiter.UpstreamFeed); err != nil {
		return nil, fmt.Errorf("wait for feed limiter: %w", err)
	}

	q := url.Values{}
	q.Set("userName", pr.Target)
	if pr.Cursor != "" {
		q.Set("cursor", pr.Cursor)
	}
	if pr.Count > 0 {
		q.Set("count", strconv.Itoa(pr.Count))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/twitter/user/last_tweets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := upstream.Check(resp, body, c.now()); err != nil {
		return nil, err
	}
	return parsePage(body)
}

var (
	statusAccessors  = Fields("status")
	messageAccessors = Fields("msg", "message", "error")
	itemsAccessors   = []Accessor{Path("data", "tweets"), Field("tweets"), Path("data", "items"), Field("data")}
	pinnedAccessors  = []Accessor{Path("data", "pin_tweet"), Field("pin_tweet"), Field("pinned_tweet"), Path("data", "pinnedTweet")}
	nextAccessors    = []Accessor{Field("next_cursor"), Field("nextCursor"), Path("data", "next_cursor"), Path("meta", "next_token")}
	hasMoreAccessors = []Accessor{Field("has_next_page"), Field("hasNextPage"), Path("data", "has_next_page")}
)

func parsePage(body []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var env Item
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if strings.EqualFold(env.FirstString(statusAccessors), "error") {
		return nil, &domain.APIError{Message: env.FirstString(messageAccessors)}
	}

	page := &Page{NextCursor: env.FirstString(nextAccessors)}

	if raw, ok := env.First(itemsAccessors); ok {
		list, _ := raw.([]any)
		for _, entry := range list {
			if obj, ok := entry.(map[string]any); ok {
				page.Items = append(page.Items, Item(obj))
			}
		}
	}

	if pin, ok := env.First(pinnedAccessors); ok {
		switch pv := pin.(type) {
		case map[string]any:
			page.PinnedID = Item(pv).ID()
		default:
			page.PinnedID = AsString(pv)
		}
	}

	if v, ok := env.First(hasMoreAccessors); ok {
		page.HasMore = Truthy(v)
	} else {
		page.HasMore = page.NextCursor != ""
	}
	return page, nil
}

// compile-time check that Client implements Source
var _ Source = (*Client)(nil)
