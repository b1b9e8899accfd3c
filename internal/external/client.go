// Package external is the boundary between the digest pipeline and the
// vendors that deliver mail. HTTP vendors go through BaseClient, which adds
// circuit breaking, bounded retries on 429/5xx, request-id propagation and
// error mapping. Timeouts are never retried here: the delivery dispatcher
// owns the single timeout retry.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"snipper/internal/types"
)

// RetryPolicy bounds BaseClient retries on 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep between retries. Tests pass a no-op.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient whose breaker opens after more than five
// consecutive failures and half-opens after 30s.
func NewBaseClient(httpClient *http.Client, breakerName string, retryPolicy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	bc := &BaseClient{
		client:      httpClient,
		breaker:     cb,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes req through the breaker. 2xx-4xx responses other than 429 are
// returned as-is and the caller closes the body. 429 and 5xx are retried per
// the policy; exhausted retries, an open breaker and transport failures come
// back as *types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if requestID := types.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so retries can replay it.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body", err)
		}
		req.Body.Close()
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if resp == nil && IsTimeout(err) {
			break
		}
		if resp != nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff honors Retry-After (seconds or HTTP date) and otherwise
// uses exponential backoff with jitter in [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := math.Min(
		float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)),
		float64(c.retryPolicy.MaxWait),
	)
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open", err)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}
	if IsTimeout(err) {
		return types.NewAppError(types.ErrCodeDeliveryTimeout, "upstream request timed out", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}
