// Package upstream maps HTTP responses from the feed and publish APIs onto
// the domain error taxonomy.
package upstream

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ricirt/feedrelay/internal/domain"
)

const maxErrorBody = 512

// StatusEnhanceYourCalm is the legacy Twitter rate-limit status.
const StatusEnhanceYourCalm = 420

// Check returns nil for 2xx responses and a categorised error otherwise.
func Check(resp *http.Response, body []byte, now time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	cause := &domain.HTTPError{StatusCode: resp.StatusCode, Body: snippet}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, cause)
	case http.StatusTooManyRequests, StatusEnhanceYourCalm:
		return &domain.RateLimitError{ResetAt: ResetTime(resp.Header, now), Err: cause}
	}
	return cause
}

// ResetTime reads the rate-limit reset signal from response headers.
// It returns the zero time when no usable signal is present.
func ResetTime(h http.Header, now time.Time) time.Time {
	for _, key := range []string{"X-Rate-Limit-Reset", "X-RateLimit-Reset", "X-Ratelimit-Reset-After"} {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		if key == "X-Ratelimit-Reset-After" || n < 1_000_000_000 {
			// Small values are relative seconds rather than epoch timestamps.
			return now.Add(time.Duration(n) * time.Second)
		}
		return time.Unix(n, 0).UTC()
	}

	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
