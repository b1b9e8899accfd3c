package core

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"snipper/internal/types"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderAdminKey  = "X-Admin-Key"
)

// IdentityMiddleware builds the Actor for the request. The user ID comes
// from X-User-ID as set by the fronting gateway. IsAdmin is true only when
// X-Admin-Key matches the configured bcrypt hash. Requests without any
// identity pass through; RequireUser rejects them where a user is needed.
func (s *Server) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := types.Actor{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		}
		if key := r.Header.Get(HeaderAdminKey); key != "" {
			actor.IsAdmin = s.checkAdminKey(key)
			if !actor.IsAdmin {
				s.Logger.Warn("admin key rejected",
					"request_id", types.GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
			}
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

func (s *Server) checkAdminKey(key string) bool {
	hash := s.Config.Security.AdminAPIKeyHash
	if !hash.IsSet() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.Unmask()), []byte(key)) == nil
}

// RequireUser rejects requests that carry no user ID with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.UserID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, HeaderUserID+" header is required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
