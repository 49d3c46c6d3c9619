package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/ks-enterprise/ks-admin/internal/observability"
	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

func (c MiddlewareConfig) production() bool {
	return c.Config != nil && c.Config.IsProduction()
}

func (c MiddlewareConfig) requestTimeout() time.Duration {
	if c.Config != nil && c.Config.AppRequestTimeout > 0 {
		return c.Config.AppRequestTimeout
	}
	return 30 * time.Second
}

func (c MiddlewareConfig) apiLimit() int {
	if c.Config != nil && c.Config.APIRateLimit > 0 {
		return c.Config.APIRateLimit
	}
	return 300
}

// MiddlewareStack returns the admin API chain in mount order. Sessions load
// before recovery so a panic still commits cookie changes made earlier.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		requestLogger(cfg.Logger),
		sessionMiddleware(cfg),
		middleware.Recoverer,
		middleware.Timeout(cfg.requestTimeout()),
		securityHeaders(cfg),
		middleware.Compress(5),
		RateLimit(cfg.apiLimit(), "Too many requests, please try again later"),
		csrfMiddleware(cfg),
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

// RateLimit allows requests per minute per client IP and answers the rest
// with a JSON 429.
func RateLimit(requests int, message string) func(http.Handler) http.Handler {
	return httprate.Limit(requests, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, message)
		}),
	)
}

// securityHeaders sets the API's response headers. The API serves JSON only, so
// the CSP denies everything.
func securityHeaders(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	prod := cfg.production()
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		SSLRedirect:           prod,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !prod,
	})
	sec.SetBadHostHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusBadRequest, "Request blocked")
	}))
	return sec.Handler
}

// requestLogger writes one structured line per request after it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(began)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}
