// Package handlers implements the snipper HTTP API: record ingestion and
// listing, digest preferences, and manual digest triggers.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"snipper/internal/core"
	"snipper/internal/types"
)

// Dates in record listings are rendered as e.g. "Jan 02".
const listDateLayout = "Jan 02"

// RecordSaver is the ingestion service.
type RecordSaver interface {
	EnsureUser(ctx context.Context, userID, email string) (*types.UserSchedule, error)
	Save(ctx context.Context, userID, source, body string) error
}

// WindowFetcher reads records for one of a user's reporting windows.
type WindowFetcher interface {
	FetchRecordsInWindow(ctx context.Context, s *types.UserSchedule, offset, limit int) ([]types.Record, types.Window, error)
}

type saveRecordRequest struct {
	Body   string `json:"body"`
	Source string `json:"source"`
}

type saveRecordResponse struct {
	Saved bool `json:"saved"`
}

// RecordDTO is a record as returned by GET /v1/records.
type RecordDTO struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// DateRange is a window rendered for display in the user's timezone.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ListRecordsResponse is the body of GET /v1/records.
type ListRecordsResponse struct {
	Records []RecordDTO `json:"records"`
	Dates   DateRange   `json:"dates"`
}

// RecordHandler serves /v1/records.
type RecordHandler struct {
	records RecordSaver
	fetcher WindowFetcher
	limit   int
	logger  *slog.Logger
}

func NewRecordHandler(records RecordSaver, fetcher WindowFetcher, limit int, l *slog.Logger) *RecordHandler {
	if l == nil {
		l = slog.Default()
	}
	if limit <= 0 {
		limit = types.MaxRecordsPerWindow
	}
	return &RecordHandler{records: records, fetcher: fetcher, limit: limit, logger: l}
}

// RegisterRoutes mounts the record routes. Callers apply core.RequireUser.
func (h *RecordHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Save)
	r.Get("/", h.List)
}

// Save handles POST /v1/records. Ingestion is fire-and-forget for clients:
// any failure, including a malformed body, answers 200 with saved=false.
func (h *RecordHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	var req saveRecordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "record request rejected", "user_id", actor.UserID, "error", err)
		core.JSON(w, r, http.StatusOK, saveRecordResponse{Saved: false})
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	if _, err := h.records.EnsureUser(ctx, actor.UserID, actor.Email); err != nil {
		h.logger.ErrorContext(ctx, "ensure user failed", "user_id", actor.UserID, "error", err)
		core.JSON(w, r, http.StatusOK, saveRecordResponse{Saved: false})
		return
	}
	if err := h.records.Save(ctx, actor.UserID, req.Source, req.Body); err != nil {
		core.JSON(w, r, http.StatusOK, saveRecordResponse{Saved: false})
		return
	}
	core.JSON(w, r, http.StatusCreated, saveRecordResponse{Saved: true})
}

// List handles GET /v1/records?offset=N, returning the records of the
// window N weeks back together with its bounds in the user's timezone.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	offset, err := parseOffset(r.URL.Query().Get("offset"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sched, err := h.records.EnsureUser(ctx, actor.UserID, actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	loc, err := sched.Location()
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTimezone, "stored timezone is invalid", err))
		return
	}

	recs, win, err := h.fetcher.FetchRecordsInWindow(ctx, sched, offset, h.limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := ListRecordsResponse{
		Records: make([]RecordDTO, 0, len(recs)),
		Dates: DateRange{
			From: win.Start.In(loc).Format(listDateLayout),
			To:   win.End.In(loc).Format(listDateLayout),
		},
	}
	for _, rec := range recs {
		resp.Records = append(resp.Records, RecordDTO{ID: rec.ID, Text: rec.Body, CreatedAt: rec.CreatedAt})
	}
	core.JSON(w, r, http.StatusOK, resp)
}

// maxOffset bounds how far back a listing may reach.
const maxOffset = 520

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxOffset {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidJSON,
			"offset must be a whole number of weeks between 0 and 520",
			err,
			map[string]any{"field": "offset"},
		)
	}
	return n, nil
}
