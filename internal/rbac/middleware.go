package rbac

import (
	"log/slog"
	"net/http"

	"github.com/ks-enterprise/ks-admin/internal/observability"
	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Middleware runs the authorization gate in front of protected handlers.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequireAuth only checks that the request carries a logged-in session.
func (m Middleware) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if !sess.IsAuthenticated() {
				m.Metrics.ObserveAuthz(DenyUnauthenticated.String())
				httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require admits the request only when the session holds perm.
func (m Middleware) Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal Principal
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				principal = sess
			}
			decision := Authorize(principal, perm)
			m.Metrics.ObserveAuthz(decision.Kind.String())
			if !decision.Allowed {
				if decision.Kind == DenyForbidden && m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.Int64("user_id", shared.ActorID(r.Context())),
						slog.String("permission", string(perm)),
						slog.String("path", r.URL.Path))
				}
				httpx.Fail(w, decision.Status(), decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
