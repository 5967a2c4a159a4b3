// Package httpretry wraps an HTTP client with capped exponential backoff for
// transient failures. It retries network errors and throttling/server
// statuses; client errors and context cancellation return immediately.
package httpretry

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retries requests through an underlying Doer. The zero value is not
// usable; construct with New.
type Client struct {
	base      Doer
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// New wraps base with up to attempts retries after the first try. A nil base
// gets a 30s-timeout http.Client; attempts <= 0 means 3.
func New(base Doer, attempts int) *Client {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Client{
		base:      base,
		attempts:  attempts,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}
}

// Do executes req, retrying on transport errors and retryable statuses
// (429, 500, 502, 503, 504). The final attempt's response is returned as-is
// so callers can read the body of a persistent failure. Requests carrying a
// body must set GetBody; http.NewRequest does for common body types.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.attempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, err
			}
			wait := c.backoff(attempt)
			log.Printf("[HTTPRetry] %s %s%s attempt %d/%d in %s",
				req.Method, req.URL.Host, req.URL.Path, attempt, c.attempts, wait)
			if !sleep(req, wait) {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := c.base.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) || attempt == c.attempts {
			return resp, nil
		}

		// Drain so the connection can be reused for the retry.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("retryable status %d from %s", resp.StatusCode, req.URL.Host)
	}

	return nil, lastErr
}

func rewindBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// sleep waits for d or the request context, whichever ends first. Returns
// false on cancellation.
func sleep(req *http.Request, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

// backoff grows baseDelay * 2^(attempt-1) up to maxDelay, with full jitter
// and a 100ms floor.
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(c.maxDelay) {
		d = float64(c.maxDelay)
	}
	wait := time.Duration(rand.Float64() * d)
	if wait < 100*time.Millisecond {
		wait = 100 * time.Millisecond
	}
	return wait
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
