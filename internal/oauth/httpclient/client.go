// Package httpclient wraps outbound calls to the providers' OAuth and API
// endpoints: token exchange/refresh (form POST), user-info lookup (bearer
// GET) and raw API posts for mail submission.
//
// Transient failures (network errors and 5xx responses) are retried with
// exponential backoff; 4xx responses are never retried. Bodies are redacted
// before logging.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/weddary/weddary/internal/observability/logger"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// APIError is a terminal provider response after retries are exhausted (or a
// non-retryable 4xx). Body carries the provider's own error payload verbatim
// so callers can surface diagnostics like redirect_uri_mismatch; redact it
// before logging or returning it to a client.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.Status, Redact(e.Body))
}

// Client is a retrying HTTP wrapper. The zero value is not usable; call New.
type Client struct {
	http        *http.Client
	maxAttempts int
	backoffBase time.Duration
}

// Option tweaks a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxAttempts overrides the retry budget.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoffBase overrides the first backoff delay. Tests set this low.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

// New builds a Client with the standard 10s timeout and 3-attempt budget.
func New(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PostForm sends an application/x-www-form-urlencoded POST (token exchange
// and refresh) and returns the response body on 2xx.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	body := form.Encode()
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, body)
}

// GetWithBearer sends an authenticated GET (user-info fetch).
func (c *Client) GetWithBearer(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return req, nil
	}, "")
}

// PostWithBearer sends an authenticated POST with an arbitrary content type
// (mail submission).
func (c *Client) PostWithBearer(ctx context.Context, endpoint, accessToken, contentType string, payload []byte) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, string(payload))
}

func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error), reqBody string) ([]byte, error) {
	log := logger.From(ctx).With(logger.Component("oauth.http"))

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		log.Debug("provider request",
			logger.Method(req.Method),
			logger.Path(req.URL.Path),
			logger.Any("attempt", attempt),
			logger.Any("body", Redact(reqBody)),
		)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Warn("provider request failed", logger.Err(err), logger.Any("attempt", attempt))
			if !c.sleep(ctx, attempt) {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if !c.sleep(ctx, attempt) {
				return nil, ctx.Err()
			}
			continue
		}

		switch {
		case resp.StatusCode/100 == 2:
			log.Debug("provider response",
				logger.Status(resp.StatusCode),
				logger.Any("body", Redact(string(body))),
			)
			return body, nil
		case resp.StatusCode/100 == 5:
			lastErr = &APIError{Status: resp.StatusCode, Body: string(body)}
			log.Warn("provider 5xx, will retry",
				logger.Status(resp.StatusCode),
				logger.Any("attempt", attempt),
				logger.Any("body", Redact(string(body))),
			)
			if !c.sleep(ctx, attempt) {
				return nil, ctx.Err()
			}
		default:
			// 4xx: client/auth errors are not transient.
			log.Warn("provider rejected request",
				logger.Status(resp.StatusCode),
				logger.Any("body", Redact(string(body))),
			)
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
	}
	if apiErr, ok := lastErr.(*APIError); ok {
		return nil, apiErr
	}
	return nil, fmt.Errorf("provider unreachable after %d attempts: %w", c.maxAttempts, lastErr)
}

// sleep backs off exponentially between attempts. Returns false when the
// context died while waiting.
func (c *Client) sleep(ctx context.Context, attempt int) bool {
	if attempt >= c.maxAttempts {
		return true
	}
	d := c.backoffBase << (attempt - 1)
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
