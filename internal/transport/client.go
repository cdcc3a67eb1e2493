package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/auth"
)

// Common errors.
var (
	ErrSessionExpired = errors.New("transport: session expired")
	ErrServerError    = errors.New("transport: server error")
	ErrNotFound       = errors.New("transport: resource not found")
	ErrNotConnected   = errors.New("transport: not connected")
)

// StatusError is returned for permanent, non-retryable HTTP failures
// (4xx other than the authorization family).
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d for %s", e.Code, e.URL)
}

// Options configures the authenticated client.
type Options struct {
	// AuthBase is the authentication realm's base URL. A success
	// response whose final resolved URL lies under this prefix is a
	// disguised login redirect and is treated as session expiry.
	AuthBase string

	// RetryAttempts is the maximum number of attempts per request.
	// Default: 10
	RetryAttempts int

	// RetryBaseDelay scales linearly with the attempt number.
	// Default: 5s
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the computed delay.
	// Default: 60s
	RetryMaxDelay time.Duration

	// Sleep is the delay function used between attempts. Tests inject
	// a no-op. Default: context-aware time.After.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		RetryAttempts:  10,
		RetryBaseDelay: 5 * time.Second,
		RetryMaxDelay:  60 * time.Second,
	}
}

// Client sends requests through a shared authenticated session and
// transparently re-establishes it on expiry.
//
// The current auth.Context is held behind an atomic pointer: requests
// load it without locking and always observe a complete session, old
// or new, never a torn one. Replacement is funneled through a
// singleflight group so that N workers discovering staleness at the
// same time trigger exactly one login between them.
type Client struct {
	authenticator *auth.Authenticator
	opts          Options

	current atomic.Pointer[auth.Context]
	login   singleflight.Group
}

// NewClient creates a Client. Call Connect before issuing requests.
func NewClient(a *auth.Authenticator, opts Options) *Client {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 10
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 5 * time.Second
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 60 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Client{
		authenticator: a,
		opts:          opts,
	}
}

// Connect performs the initial login. Failure here is fatal for the
// run: no transfer work should start without a verified session.
func (c *Client) Connect(ctx context.Context) error {
	sess, err := c.authenticator.Establish(ctx)
	if err != nil {
		return err
	}
	c.current.Store(sess)
	return nil
}

// Get issues an authenticated GET. The extra header values (typically
// a Range) are copied onto the request.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, header)
}

// Head issues an authenticated HEAD.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodHead, url, nil)
}

// Do issues one authenticated request with bounded retry.
//
// Transport-level errors and authorization failures (401/403/503 or a
// success response resolving under the realm) are retried after a
// backoff and a coalesced re-login. Server errors (5xx) are retried
// without re-login. Other 4xx statuses will never succeed unchanged
// and propagate immediately as *StatusError — except 416, which is
// returned as a normal response because range semantics belong to the
// caller.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		sess := c.current.Load()
		if sess == nil {
			if lastErr == nil {
				lastErr = ErrNotConnected
			}
			if err := c.refresh(ctx, nil); err != nil {
				lastErr = err
				continue
			}
			sess = c.current.Load()
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := sess.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Connection reset, timeout, truncated stream: the pool
			// may be poisoned, rebuild the session before retrying.
			lastErr = err
			if rerr := c.refresh(ctx, sess); rerr != nil {
				lastErr = rerr
			}
			continue
		}

		switch {
		case c.isLoginRedirect(resp):
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: redirected to %s", ErrSessionExpired, resp.Request.URL)
			if rerr := c.refresh(ctx, sess); rerr != nil {
				lastErr = rerr
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusServiceUnavailable:
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode)
			if rerr := c.refresh(ctx, sess); rerr != nil {
				lastErr = rerr
			}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue

		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			return resp, nil

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)

		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: url}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.opts.RetryAttempts, lastErr)
}

// isLoginRedirect detects the deceptive expiry signal: a success-class
// response whose final URL landed under the authentication realm
// instead of the requested resource.
func (c *Client) isLoginRedirect(resp *http.Response) bool {
	if c.opts.AuthBase == "" {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	return strings.HasPrefix(resp.Request.URL.String(), c.opts.AuthBase)
}

// refresh replaces the shared session. stale is the session the
// caller observed failing; if another worker has already swapped in a
// newer one, no login happens and the caller simply retries against
// it. Concurrent calls are collapsed into a single login by the
// singleflight group.
func (c *Client) refresh(ctx context.Context, stale *auth.Context) error {
	_, err, _ := c.login.Do("login", func() (interface{}, error) {
		if cur := c.current.Load(); cur != nil && cur != stale {
			return nil, nil
		}
		sess, err := c.authenticator.Establish(ctx)
		if err != nil {
			// Leave the old session in place; a later attempt may
			// succeed once the realm recovers.
			return nil, err
		}
		c.current.Store(sess)
		return nil, nil
	})
	return err
}

// backoff waits base×attempt plus a small jitter, so workers that
// failed together do not retry together.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.opts.RetryBaseDelay * time.Duration(attempt)
	if delay > c.opts.RetryMaxDelay {
		delay = c.opts.RetryMaxDelay
	}
	delay += time.Duration(rand.Int64N(int64(time.Second)))
	return c.opts.Sleep(ctx, delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
