package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"snipper/internal/types"
)

func noopSleep(time.Duration) {}

func newTestClient(t *testing.T, policy RetryPolicy, timeout time.Duration) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: timeout},
		"test-breaker-"+t.Name(),
		policy,
		"Snipper-Test/1.0",
		WithSleepFunc(noopSleep),
	)
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func TestDo_SuccessAndHeaders(t *testing.T) {
	var gotUA, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(2), 5*time.Second)
	ctx := types.WithRequestID(context.Background(), "req-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotUA != "Snipper-Test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotRequestID != "req-123" {
		t.Errorf("X-Request-Id = %q", gotRequestID)
	}
}

func TestDo_RetriesOn5xxAndReplaysBody(t *testing.T) {
	var attempts atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(2), 5*time.Second)
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"x":1}`))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	for i, b := range bodies {
		if b != `{"x":1}` {
			t.Errorf("attempt %d body = %q", i, b)
		}
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	tests := []struct {
		status int
		want   types.ErrorCode
	}{
		{http.StatusInternalServerError, types.ErrCodeUpstreamUnavailable},
		{http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, fastPolicy(1), 5*time.Second)
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			_, err := client.Do(req)
			if !types.HasCode(err, tt.want) {
				t.Fatalf("error = %v, want code %s", err, tt.want)
			}
			if attempts.Load() != 2 {
				t.Errorf("attempts = %d, want 2", attempts.Load())
			}
		})
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(3), 5*time.Second)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || attempts.Load() != 1 {
		t.Errorf("status = %d attempts = %d", resp.StatusCode, attempts.Load())
	}
}

func TestDo_TimeoutIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(3), 50*time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := client.Do(req)
	if !types.HasCode(err, types.ErrCodeDeliveryTimeout) {
		t.Fatalf("error = %v, want delivery timeout", err)
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout = false")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(0), 5*time.Second)
	for i := 0; i < 6; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, _ = client.Do(req)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if !types.HasCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if attempts.Load() != 6 {
		t.Errorf("attempts = %d, want 6 (breaker should short-circuit the 7th)", attempts.Load())
	}
}

func TestComputeBackoff(t *testing.T) {
	c := newTestClient(t, RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second}, time.Second)

	for attempt := 0; attempt < 5; attempt++ {
		wait := c.computeBackoff(attempt, nil)
		if wait < 100*time.Millisecond || wait > time.Second {
			t.Errorf("attempt %d wait %v out of bounds", attempt, wait)
		}
	}

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	if got := c.computeBackoff(0, resp); got != time.Second {
		t.Errorf("Retry-After not capped: %v", got)
	}
}

func TestIsTimeout(t *testing.T) {
	if IsTimeout(nil) {
		t.Error("nil is not a timeout")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("deadline exceeded is a timeout")
	}
	if !IsTimeout(types.NewAppError(types.ErrCodeDeliveryTimeout, "x", nil)) {
		t.Error("delivery timeout code is a timeout")
	}
	if IsTimeout(errors.New("connection refused")) {
		t.Error("plain error is not a timeout")
	}
}
