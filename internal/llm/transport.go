package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider injects extra per-request headers.
type HeaderProvider func() map[string]string

// StaticHeaders always returns h.
func StaticHeaders(h map[string]string) HeaderProvider {
	return func() map[string]string { return h }
}

// transport is the fasthttp plumbing shared by every provider.
type transport struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	auth    func(*fasthttp.Request)

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*transport)

func WithTimeout(d time.Duration) Option {
	return func(c *transport) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *transport) {
		if n > 0 {
			c.http.MaxConnsPerHost = n
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *transport) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *transport) { c.retryMax = max }
}

// WithDialer replaces the TCP dialer, for in-memory tests.
func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(c *transport) { c.http.Dial = dial }
}

func newTransport(baseURL string, opts []Option) transport {
	c := transport{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 60 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// MaxConnsPerHost reports the connection cap in effect.
func (c *transport) MaxConnsPerHost() int { return c.http.MaxConnsPerHost }

func (c *transport) doJSON(ctx context.Context, method, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.auth != nil {
		c.auth(req)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("llm api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *transport) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
