package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency (Postgres, Redis).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProbeFunc adapts a ping function to HealthProbe.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string                    { return p.ProbeName }
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently under a two second deadline.
// It answers 200 when all pass and 503 otherwise. A probe that has not
// finished when the deadline fires is reported as timed out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
		wg      sync.WaitGroup
	)
	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			var err error
			func() {
				defer func() {
					if rvr := recover(); rvr != nil {
						err = fmt.Errorf("probe panicked: %v", rvr)
					}
				}()
				err = p.Check(ctx)
			}()
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp := healthResponse{Status: "healthy", Components: make(map[string]componentStatus, len(probes))}
	for _, probe := range probes {
		name := probe.Name()
		err, finished := results[name]
		switch {
		case !finished:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			resp.Components[name] = componentStatus{Status: "healthy"}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
