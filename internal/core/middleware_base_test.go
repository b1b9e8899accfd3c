package core

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snipper/internal/types"
)

func TestRecoverer_Panic_ReturnsJSON500(t *testing.T) {
	srv := newTestServer(t)
	h := RequestIDMiddleware(srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set("X-Request-Id", "req-panic")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	d := decodeError(t, rec)
	if d.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code %q", d.Code)
	}
	if d.RequestID != "req-panic" {
		t.Errorf("expected request id to survive panic, got %q", d.RequestID)
	}
}

func TestRecoverer_NoPanic(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(seen) != 36 {
			t.Errorf("expected a UUID request id, got %q", seen)
		}
		if rec.Header().Get("X-Request-Id") != seen {
			t.Error("response header does not match context id")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		h.ServeHTTP(rec, req)
		if seen != "abc-123" {
			t.Errorf("expected abc-123, got %q", seen)
		}
	})
}

func TestRequestLogger_RedactsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(logger, []string{"x-admin-key"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/digests/trigger", nil)
	req.Header.Set("X-Admin-Key", "hunter2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Error("admin key leaked into logs")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redaction marker")
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected WARN for 403, got %s", out)
	}
	if !strings.Contains(out, "status=403") {
		t.Errorf("expected status in log line, got %s", out)
	}
}

func TestResponseCapture_WriteHeaderOnlyOnce(t *testing.T) {
	rc := &responseCapture{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rc.WriteHeader(http.StatusBadRequest)
	rc.WriteHeader(http.StatusOK)
	if rc.statusCode != http.StatusBadRequest {
		t.Errorf("expected first status to stick, got %d", rc.statusCode)
	}
}

func TestResponseCapture_DefaultsTo200OnWrite(t *testing.T) {
	rc := &responseCapture{ResponseWriter: httptest.NewRecorder()}
	_, _ = rc.Write([]byte("ok"))
	if rc.statusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", rc.statusCode)
	}
}
