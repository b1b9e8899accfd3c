package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/core"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

type mockStarter struct {
	got   []scheduler.TriggerRequest
	err   error
	batch bool
}

func (m *mockStarter) Start(_ context.Context, req scheduler.TriggerRequest) (types.FetchStep, error) {
	m.got = append(m.got, req)
	if m.err != nil {
		return types.FetchStep{}, m.err
	}
	return types.FetchStep{TraceID: "trace-1", Force: req.Force && req.Admin, RecipientID: req.RecipientID}, nil
}

func triggerRouter(t *testing.T, starter *mockStarter) http.Handler {
	return newTestRouter(t, func(srv *core.Server) func(chi.Router) {
		h := NewTriggerHandler(starter, srv.Validator, testLogger())
		return func(r chi.Router) { r.Route("/digests", h.RegisterRoutes) }
	})
}

func TestTriggerHandler_SelfTrigger(t *testing.T) {
	starter := &mockStarter{}
	h := triggerRouter(t, starter)

	rec := do(h, http.MethodPost, "/v1/digests/trigger", `{"offset":1}`, asUser("u1"))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, starter.got, 1)
	assert.Equal(t, scheduler.TriggerRequest{Offset: 1, RecipientID: "u1"}, starter.got[0])
	var body TriggerResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "trace-1", body.TraceID)
	assert.False(t, body.Batch)
}

func TestTriggerHandler_ByEmail(t *testing.T) {
	starter := &mockStarter{}
	h := triggerRouter(t, starter)

	rec := do(h, http.MethodPost, "/v1/digests/trigger", `{"recipient_email":"cy@example.com"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "cy@example.com", starter.got[0].RecipientEmail)
	assert.Empty(t, starter.got[0].RecipientID)
}

func TestTriggerHandler_ForceRequiresAdmin(t *testing.T) {
	starter := &mockStarter{}
	h := triggerRouter(t, starter)

	rec := do(h, http.MethodPost, "/v1/digests/trigger", `{"force":true}`, asUser("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodPost, "/v1/digests/trigger", `{"force":true}`, withAdminKey("wrong"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, starter.got, "nothing may be enqueued without admin")
}

func TestTriggerHandler_ForceWithAdmin(t *testing.T) {
	starter := &mockStarter{}
	h := triggerRouter(t, starter)

	rec := do(h, http.MethodPost, "/v1/digests/trigger", `{"force":true,"offset":1}`, withAdminKey(testAdminKey))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, starter.got, 1)
	assert.True(t, starter.got[0].Force)
	assert.True(t, starter.got[0].Admin)
	var body TriggerResponse
	decodeBody(t, rec, &body)
	assert.True(t, body.Batch)
}

func TestTriggerHandler_Validation(t *testing.T) {
	starter := &mockStarter{}
	h := triggerRouter(t, starter)

	tests := map[string]string{
		"negative offset":  `{"offset":-1}`,
		"bad email":        `{"recipient_email":"nope"}`,
		"unknown field":    `{"weeks":1}`,
		"nobody to notify": `{}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/v1/digests/trigger", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, starter.got)
}

func TestTriggerHandler_StartError(t *testing.T) {
	starter := &mockStarter{err: types.NewAppError(types.ErrCodeInternalQueue, "queue down", nil)}
	h := triggerRouter(t, starter)

	rec := do(h, http.MethodPost, "/v1/digests/trigger", `{}`, asUser("u1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
