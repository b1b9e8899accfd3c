package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"snipper/internal/core"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

// DigestStarter starts a digest run.
type DigestStarter interface {
	Start(ctx context.Context, req scheduler.TriggerRequest) (types.FetchStep, error)
}

// TriggerRequest is the body of POST /v1/digests/trigger.
type TriggerRequest struct {
	Offset         int    `json:"offset" validate:"min=0,max=520"`
	Force          bool   `json:"force"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
}

// TriggerResponse acknowledges an enqueued run.
type TriggerResponse struct {
	TraceID string `json:"trace_id"`
	Batch   bool   `json:"batch"`
}

// TriggerHandler serves /v1/digests.
type TriggerHandler struct {
	starter   DigestStarter
	validator *core.Validator
	logger    *slog.Logger
}

func NewTriggerHandler(starter DigestStarter, v *core.Validator, l *slog.Logger) *TriggerHandler {
	if l == nil {
		l = slog.Default()
	}
	return &TriggerHandler{starter: starter, validator: v, logger: l}
}

func (h *TriggerHandler) RegisterRoutes(r chi.Router) {
	r.Post("/trigger", h.Trigger)
}

// Trigger handles POST /v1/digests/trigger. A forced run over every user
// needs an admin key; otherwise the digest goes to recipient_email, or to
// the caller when none is given.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	var req TriggerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Force && !actor.IsAdmin {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionAdminRequired, "force requires an admin key", nil))
		return
	}

	treq := scheduler.TriggerRequest{
		Offset:         req.Offset,
		Force:          req.Force,
		Admin:          actor.IsAdmin,
		RecipientEmail: req.RecipientEmail,
	}
	if !req.Force && req.RecipientEmail == "" {
		if actor.UserID == "" {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "recipient_email or "+core.HeaderUserID+" is required", nil))
			return
		}
		treq.RecipientID = actor.UserID
	}

	step, err := h.starter.Start(ctx, treq)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "digest run triggered",
		"trace_id", step.TraceID,
		"force", step.Force,
		"recipient_id", treq.RecipientID,
		"recipient_email", types.RedactEmail(treq.RecipientEmail),
	)
	core.JSON(w, r, http.StatusAccepted, TriggerResponse{TraceID: step.TraceID, Batch: step.IsBatch()})
}
