package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
	}
}

// MountRoutes registers auth routes on provided router. loginLimit wraps the
// login endpoint only.
func (h *Handler) MountRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	if loginLimit == nil {
		r.Post("/login", h.handleLogin)
	} else {
		r.With(loginLimit).Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Get("/csrf", h.handleCSRF)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		httpx.Fail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	login, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user := login.User
	perms := login.Permissions.Strings()
	sess.Authenticate(shared.Identity{
		UserID:      user.ID,
		Username:    user.Username,
		RoleID:      user.RoleID,
		RoleName:    user.RoleName,
		Permissions: perms,
	})
	csrfToken, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	// user_sessions is keyed like Redis so the table holds no usable tokens.
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), h.sessionManager.StorageKey(sess.ID), user.ID, expiresAt, clientIP(r), r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	h.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.Int64("role_id", user.RoleID))

	httpx.Success(w, http.StatusOK, "Login successful", map[string]any{
		"user": userView{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     roleView{ID: user.RoleID, Name: user.RoleName, Permissions: perms},
		},
		"token":     sess.ID,
		"csrfToken": csrfToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.IsAuthenticated() {
			if err := h.service.RemoveSession(r.Context(), h.sessionManager.StorageKey(sess.ID)); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.Success(w, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := shared.SessionFromContext(r.Context()).Identity()
	if identity == nil {
		httpx.RespondError(w, r, h.logger, shared.ErrUnauthenticated)
		return
	}
	perms := identity.Permissions
	if perms == nil {
		perms = []string{}
	}
	httpx.Success(w, http.StatusOK, "", map[string]any{
		"user": userView{
			ID:       identity.UserID,
			Username: identity.Username,
			Role:     roleView{ID: identity.RoleID, Name: identity.RoleName, Permissions: perms},
		},
	})
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", map[string]any{"csrfToken": token})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
