// Package sourcehost wraps outbound HTTP calls to the upstream hosting API
// (GitHub-compatible): auth header injection, retry with back-off on
// transient and rate-limited responses, and typed helpers for the endpoints
// the pipeline uses.
package sourcehost

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultAPIVersion = "2022-11-28"
	defaultUserAgent  = "skilldex-registry/1.0"
	defaultTimeout    = 15 * time.Second
)

// retryableStatuses are retried by default, alongside rate-limited 403s.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Options configures a Client. The zero value is usable; Validate fills in
// documented defaults.
type Options struct {
	BaseURL           string        // default https://api.github.com
	Token             string        // injected as Bearer auth on source-host requests
	APIVersion        string        // default 2022-11-28
	UserAgent         string        // default skilldex-registry/1.0
	MaxRetries        int           // attempts after the first; default 3
	MaxDelay          time.Duration // back-off cap; default 30s
	RequestTimeout    time.Duration // per-attempt timeout; default 15s
	RequestsPerSecond float64       // client-side pacing; 0 disables
	RetryableStatuses []int         // overrides the default retry set
}

// Validate checks option values and applies defaults.
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(o.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if o.APIVersion == "" {
		o.APIVersion = defaultAPIVersion
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", o.MaxRetries)
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = defaultTimeout
	}
	if o.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must be >= 0, got %v", o.RequestsPerSecond)
	}
	return nil
}

// Client is the single outbound entry point to the source host.
type Client struct {
	opts     Options
	http     *http.Client
	limiter  *rate.Limiter
	retrySet map[int]bool
	logger   *zap.Logger
}

// New creates a Client, validating opts.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		opts:     opts,
		http:     &http.Client{Timeout: opts.RequestTimeout},
		retrySet: retryableStatuses,
		logger:   logger,
	}
	if len(opts.RetryableStatuses) > 0 {
		c.retrySet = make(map[int]bool, len(opts.RetryableStatuses))
		for _, s := range opts.RetryableStatuses {
			c.retrySet[s] = true
		}
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Request performs a GET against rawURL with retry and back-off. Relative
// paths are resolved against the configured base URL. The response body is
// fully read and returned; non-2xx terminal responses surface as *APIError.
func (c *Client) Request(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	target := rawURL
	if strings.HasPrefix(rawURL, "/") {
		target = strings.TrimRight(c.opts.BaseURL, "/") + rawURL
	}

	sameHost := strings.HasPrefix(target, c.opts.BaseURL)

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", c.opts.APIVersion)
		req.Header.Set("User-Agent", c.opts.UserAgent)
		if sameHost && c.opts.Token != "" && req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.Token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Network errors retry on the same schedule; the original error
			// surfaces when the budget runs out.
			if lastErr == nil {
				lastErr = err
			}
			if attempt == c.opts.MaxRetries {
				return nil, nil, lastErr
			}
			if !c.sleep(ctx, c.backoff(attempt)) {
				return nil, nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if lastErr == nil {
				lastErr = readErr
			}
			if attempt == c.opts.MaxRetries {
				return nil, nil, lastErr
			}
			if !c.sleep(ctx, c.backoff(attempt)) {
				return nil, nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, resp.Header, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, URL: target, Body: truncate(string(body), 512)}
		if !c.shouldRetry(resp) || attempt == c.opts.MaxRetries {
			return nil, resp.Header, apiErr
		}

		delay := c.retryDelay(resp, attempt)
		c.logger.Debug("source host retry",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if !c.sleep(ctx, delay) {
			return nil, nil, ctx.Err()
		}
		lastErr = apiErr
	}
	return nil, nil, lastErr
}

// shouldRetry applies the §retry rules: the transient status set, plus 403
// responses that are actually rate limits.
func (c *Client) shouldRetry(resp *http.Response) bool {
	if c.retrySet[resp.StatusCode] {
		return true
	}
	if resp.StatusCode == http.StatusForbidden {
		if resp.Header.Get("Retry-After") != "" {
			return true
		}
		if resp.Header.Get("x-ratelimit-remaining") == "0" {
			return true
		}
	}
	return false
}

// retryDelay honors Retry-After (seconds or HTTP-date), then
// x-ratelimit-reset (epoch seconds), then exponential back-off with jitter.
func (c *Client) retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return c.capDelay(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(ra); err == nil {
			return c.capDelay(time.Until(t))
		}
	}
	if reset := resp.Header.Get("x-ratelimit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return c.capDelay(time.Until(time.Unix(epoch, 0)))
		}
	}
	return c.backoff(attempt)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(500*(1<<attempt)) * time.Millisecond
	if d > c.opts.MaxDelay {
		d = c.opts.MaxDelay
	}
	return d + time.Duration(rand.Intn(250))*time.Millisecond
}

func (c *Client) capDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > c.opts.MaxDelay {
		return c.opts.MaxDelay
	}
	return d
}

// sleep waits for d or until ctx is done; returns false when canceled.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// APIError is a non-2xx terminal response from the source host.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source host returned %d for %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is a 404 from the source host.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
