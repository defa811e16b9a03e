package authz

import (
	"log/slog"
	"net/http"

	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/httpx"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Middleware guards routes with permission checks against the acting user
// resolved earlier in the chain.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the permission before passing the
// request through.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := shared.ActorFromContext(ctx)
			if userID == 0 {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "no authenticated user")
				return
			}
			ok, err := m.Service.Allowed(ctx, shared.OrgFromContext(ctx), userID, permission)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check failed", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
