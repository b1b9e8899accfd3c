package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"snipper/internal/scheduler"
)

type mockJob struct {
	got    []scheduler.MaintenancePayload
	result string
	err    error
}

func (m *mockJob) Run(_ context.Context, p scheduler.MaintenancePayload) (string, error) {
	m.got = append(m.got, p)
	return m.result, m.err
}

func TestNewHandler_PassesPayloadThrough(t *testing.T) {
	job := &mockJob{result: "digest chain started"}
	h := newHandler(job, nil)

	out, err := h(context.Background(), scheduler.MaintenancePayload{Task: scheduler.TaskResyncUTC})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if out != "digest chain started" {
		t.Errorf("result = %q", out)
	}
	if len(job.got) != 1 || job.got[0].Task != scheduler.TaskResyncUTC {
		t.Errorf("payload not forwarded: %+v", job.got)
	}
}

func TestNewHandler_WrapsError(t *testing.T) {
	job := &mockJob{err: errors.New("queue unavailable")}
	h := newHandler(job, nil)

	_, err := h(context.Background(), scheduler.MaintenancePayload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "trigger failed") || !errors.Is(err, job.err) {
		t.Errorf("unexpected error: %v", err)
	}
}
