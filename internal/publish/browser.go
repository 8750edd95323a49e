package publish

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/domain"
)

// BrowserConfig configures the UI-automation publisher.
type BrowserConfig struct {
	// BaseURL of the web app, e.g. https://x.com.
	BaseURL string
	// AuthToken is the session cookie value of a logged-in account.
	AuthToken string
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string
	// Bin overrides the Chrome binary used by the launcher.
	Bin     string
	Timeout time.Duration
}

func (c *BrowserConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// DOM hooks of the web app.
const (
	selComposeBox     = `[data-testid="tweetTextarea_0"]`
	selComposeSubmit  = `[data-testid="tweetButton"]`
	selRetweet        = `[data-testid="retweet"]`
	selUnretweet      = `[data-testid="unretweet"]`
	selRetweetConfirm = `[data-testid="retweetConfirm"]`
	selToast          = `[data-testid="toast"]`
	selAccountSwitch  = `[data-testid="SideNav_AccountSwitcher_Button"]`
)

var rateLimitToasts = []string{"rate limit", "try again later", "over the daily limit"}

// BrowserClient drives a logged-in web session through Rod. Calls are
// serialised: one page is used per publish and closed afterwards.
type BrowserClient struct {
	cfg     BrowserConfig
	logger  *zap.Logger
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// OpenBrowser launches (or connects to) Chrome, installs the session cookie
// and verifies the session is logged in.
func OpenBrowser(ctx context.Context, cfg BrowserConfig, logger *zap.Logger) (*BrowserClient, error) {
	cfg.defaults()
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("browser auth token: %w", domain.ErrCredentialsMissing)
	}
	c := &BrowserClient{cfg: cfg, logger: logger}
	if err := c.launch(); err != nil {
		c.cleanup()
		return nil, err
	}
	if err := c.verifySession(ctx); err != nil {
		c.cleanup()
		return nil, err
	}
	return c, nil
}

func (c *BrowserClient) launch() error {
	wsURL := c.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		if c.cfg.Bin != "" {
			l = l.Bin(c.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		c.lnch = l
		c.logger.Info("launched local chrome", zap.String("url", wsURL))
	} else {
		c.logger.Info("connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	c.browser = b

	host := c.cfg.BaseURL
	if u, err := url.Parse(c.cfg.BaseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	err := c.browser.SetCookies([]*proto.NetworkCookieParam{{
		Name:     "auth_token",
		Value:    c.cfg.AuthToken,
		Domain:   "." + strings.TrimPrefix(host, "www."),
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
	}})
	if err != nil {
		return fmt.Errorf("browser: set session cookie: %w", err)
	}
	return nil
}

func (c *BrowserClient) verifySession(ctx context.Context) error {
	page, err := c.open(ctx, c.cfg.BaseURL+"/home")
	if err != nil {
		return err
	}
	defer page.Close()

	if loggedOut(page) {
		return fmt.Errorf("browser session: %w", domain.ErrUnauthorized)
	}
	if _, err := page.Element(selAccountSwitch); err != nil {
		return fmt.Errorf("browser session: %w: %w", domain.ErrUnauthorized, err)
	}
	return nil
}

// Publish performs the action through the web UI. The remote id of a new
// post is not observable there, so Result.RemoteID is empty for republish.
func (c *BrowserClient) Publish(ctx context.Context, r Request) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil, fmt.Errorf("browser: closed")
	}

	switch r.Mode {
	case domain.ModeRetweet:
		return c.retweet(ctx, r)
	case domain.ModeRepublish:
		return c.compose(ctx, r)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, r.Mode)
}

func (c *BrowserClient) retweet(ctx context.Context, r Request) (*Result, error) {
	page, err := c.open(ctx, fmt.Sprintf("%s/%s/status/%s", c.cfg.BaseURL, url.PathEscape(r.Target), r.ItemID))
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if loggedOut(page) {
		return nil, fmt.Errorf("browser session: %w", domain.ErrUnauthorized)
	}
	if has, _, _ := page.Has(selUnretweet); has {
		// Already reposted by this account.
		return &Result{RemoteID: r.ItemID}, nil
	}

	btn, err := page.Element(selRetweet)
	if err != nil {
		return nil, fmt.Errorf("browser: find retweet button: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("browser: click retweet: %w", err)
	}
	confirm, err := page.Element(selRetweetConfirm)
	if err != nil {
		return nil, fmt.Errorf("browser: find retweet confirm: %w", err)
	}
	if err := confirm.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("browser: confirm retweet: %w", err)
	}
	if err := toastError(page); err != nil {
		return nil, err
	}
	return &Result{RemoteID: r.ItemID}, nil
}

func (c *BrowserClient) compose(ctx context.Context, r Request) (*Result, error) {
	if strings.TrimSpace(r.Content) == "" {
		return nil, fmt.Errorf("browser: empty content for %s", r.ItemID)
	}
	page, err := c.open(ctx, c.cfg.BaseURL+"/compose/post")
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if loggedOut(page) {
		return nil, fmt.Errorf("browser session: %w", domain.ErrUnauthorized)
	}
	box, err := page.Element(selComposeBox)
	if err != nil {
		return nil, fmt.Errorf("browser: find compose box: %w", err)
	}
	if err := box.Input(r.Content); err != nil {
		return nil, fmt.Errorf("browser: type content: %w", err)
	}
	submit, err := page.Element(selComposeSubmit)
	if err != nil {
		return nil, fmt.Errorf("browser: find post button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("browser: click post: %w", err)
	}
	if err := toastError(page); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// open creates a stealth page bound to a per-call timeout and navigates it.
func (c *BrowserClient) open(ctx context.Context, pageURL string) (*rod.Page, error) {
	page, err := stealth.Page(c.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	page = page.Context(ctx).Timeout(c.cfg.Timeout)

	if err := page.Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		c.logger.Warn("wait load timeout", zap.String("url", pageURL), zap.Error(err))
	}
	return page, nil
}

func loggedOut(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	return strings.Contains(info.URL, "/login") || strings.Contains(info.URL, "/i/flow/")
}

// toastError waits briefly for a notification toast and maps throttling
// messages to a rate-limit error.
func toastError(page *rod.Page) error {
	toast, err := page.Timeout(3 * time.Second).Element(selToast)
	if err != nil {
		// No toast is the normal outcome.
		return nil
	}
	text, err := toast.Text()
	if err != nil {
		return nil
	}
	lower := strings.ToLower(text)
	for _, marker := range rateLimitToasts {
		if strings.Contains(lower, marker) {
			return &domain.RateLimitError{Err: fmt.Errorf("browser toast: %s", text)}
		}
	}
	if strings.Contains(lower, "something went wrong") || strings.Contains(lower, "failed") {
		return fmt.Errorf("browser toast: %s", text)
	}
	return nil
}

// Close shuts the browser down.
func (c *BrowserClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup()
	return nil
}

func (c *BrowserClient) cleanup() {
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
}

// compile-time check that BrowserClient implements Executor
var _ Executor = (*BrowserClient)(nil)
