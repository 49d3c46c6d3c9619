package app

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// loginPath is exempt from CSRF so a stale cookie never blocks signing in.
const loginPath = "/api/auth/login"

// commitWriter runs commit once, just before the response headers go out, so
// session cookies land in them. Handlers that write nothing get their commit
// after they return.
type commitWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *commitWriter) WriteHeader(code int) {
	w.once.Do(w.commit)
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.once.Do(w.commit)
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func sessionMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := cfg.SessionManager.Load(r.Context(), r)
			if err != nil {
				cfg.Logger.Error("load session", slog.Any("error", err))
				httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			cw := &commitWriter{ResponseWriter: w}
			cw.commit = func() {
				if err := cfg.SessionManager.Commit(r.Context(), w, r, sess); err != nil {
					cfg.Logger.Error("commit session", slog.Any("error", err))
				}
			}
			next.ServeHTTP(cw, r)
			cw.once.Do(cw.commit)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// csrfMiddleware checks the double-submit token on state-changing requests
// made with the session cookie. Bearer-token clients skip the check.
func csrfMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			exempt := isSafeMethod(r.Method) || r.URL.Path == loginPath ||
				!sess.FromCookie() || !sess.IsAuthenticated()
			if exempt {
				next.ServeHTTP(w, r)
				return
			}
			if err := cfg.CSRFManager.VerifyToken(r.Context(), sess, r.Header.Get(shared.CSRFHeader)); err != nil {
				cfg.Logger.Warn("csrf rejected",
					slog.String("path", r.URL.Path),
					slog.Int64("user_id", sess.UserID()),
					slog.Any("error", err))
				httpx.RespondError(w, r, cfg.Logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
