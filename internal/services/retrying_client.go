package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/contentforge/backend/internal/config"
)

// RetryingClient wraps outbound HTTP calls with bounded retry-with-backoff.
// Network errors and 429/5xx are retryable; 401/403 and other 4xx are not.
// The retry layer never touches the ledger: exhausting retries surfaces the
// last error to the caller, which owns any refund semantics.
type RetryingClient struct {
	client      *http.Client
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

func NewRetryingClient(cfg *config.PipelineConfig) *RetryingClient {
	return &RetryingClient{
		client:      &http.Client{Timeout: 60 * time.Second},
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
		maxAttempts: cfg.RetryMaxAttempts,
	}
}

// Do executes the request, retrying per classification. The request factory is
// called per attempt so bodies are rebuilt rather than re-read.
func (c *RetryingClient) Do(ctx context.Context, makeRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := makeRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[RETRY] Attempt %d/%d network error: %v", attempt, c.maxAttempts, err)
			if attempt < c.maxAttempts {
				if err := c.wait(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		delay := c.backoff(attempt)
		if hint := retryAfterHint(resp); hint > 0 {
			delay = hint
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		resp.Body.Close()
		lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
		log.Printf("[RETRY] Attempt %d/%d status %d, next delay %v", attempt, c.maxAttempts, resp.StatusCode, delay)

		if attempt < c.maxAttempts {
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

func (c *RetryingClient) backoff(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func (c *RetryingClient) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func retryAfterHint(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
