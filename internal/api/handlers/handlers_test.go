package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"snipper/internal/config"
	"snipper/internal/core"
)

const testAdminKey = "admin-s3cret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter mounts the handlers behind the real middleware chain so the
// tests exercise header-based identity as production does.
func newTestRouter(t *testing.T, register func(srv *core.Server) func(r chi.Router)) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{Environment: "local"}
	cfg.Security.AdminAPIKeyHash = config.SecretString(hash)
	srv, err := core.NewServer(cfg, testLogger())
	require.NoError(t, err)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, register(srv))
	srv.MountRoutes()
	return srv.Handler()
}

type requestOpt func(*http.Request)

func asUser(id string) requestOpt {
	return func(r *http.Request) { r.Header.Set(core.HeaderUserID, id) }
}

func withAdminKey(key string) requestOpt {
	return func(r *http.Request) { r.Header.Set(core.HeaderAdminKey, key) }
}

func do(h http.Handler, method, path, body string, opts ...requestOpt) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req = req.WithContext(context.Background())
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
