package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"snipper/internal/core"
	"snipper/internal/digest"
	"snipper/internal/types"
)

// UserEnsurer creates a user's schedule on first contact.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, userID, email string) (*types.UserSchedule, error)
}

// PreferencesSaver is the preferences service.
type PreferencesSaver interface {
	Save(ctx context.Context, userID string, upd digest.PreferencesUpdate) (*types.UserSchedule, error)
}

// PreferencesHandler serves /v1/preferences.
type PreferencesHandler struct {
	users  UserEnsurer
	prefs  PreferencesSaver
	logger *slog.Logger
}

func NewPreferencesHandler(users UserEnsurer, prefs PreferencesSaver, l *slog.Logger) *PreferencesHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PreferencesHandler{users: users, prefs: prefs, logger: l}
}

// RegisterRoutes mounts the preference routes. Callers apply core.RequireUser.
func (h *PreferencesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
}

// Get handles GET /v1/preferences.
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	sched, err := h.users.EnsureUser(r.Context(), actor.UserID, actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, sched)
}

// Update handles PUT /v1/preferences. Every valid field is saved even when
// others are rejected; the 400 reply then names the rejected fields and
// carries the preferences as stored.
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := types.GetActor(ctx)

	var upd digest.PreferencesUpdate
	if err := core.DecodeJSON(w, r, &upd); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.users.EnsureUser(ctx, actor.UserID, actor.Email); err != nil {
		core.Error(w, r, err)
		return
	}

	saved, err := h.prefs.Save(ctx, actor.UserID, upd)
	if err != nil {
		var appErr *types.AppError
		if saved != nil && errors.As(err, &appErr) && appErr.Code == types.ErrCodeValidationPreferences {
			core.Error(w, r, appErr.WithDetails(map[string]any{"preferences": saved}))
			return
		}
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, saved)
}
