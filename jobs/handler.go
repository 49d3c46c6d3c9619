package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
	"github.com/ks-enterprise/ks-admin/internal/rbac"
)

// QueueInspector is satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueStats is a point-in-time view of one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// Fields flattens s into response fields.
func (s QueueStats) Fields() map[string]any {
	return map[string]any{
		"queue":     s.Queue,
		"pending":   s.Pending,
		"active":    s.Active,
		"scheduled": s.Scheduled,
		"retry":     s.Retry,
		"failed":    s.Failed,
	}
}

// ReadQueueStats reads queue depth. A queue that has never held a task
// reports zeros.
func ReadQueueStats(inspector QueueInspector, queue string) (QueueStats, error) {
	stats := QueueStats{Queue: queue}
	if inspector == nil {
		return stats, nil
	}
	info, err := inspector.GetQueueInfo(queue)
	switch {
	case errors.Is(err, asynq.ErrQueueNotFound):
		return stats, nil
	case err != nil:
		return QueueStats{}, err
	case info == nil:
		return stats, nil
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Failed = info.Failed
	return stats, nil
}

// Handler serves queue health to administrators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
	rbac      rbac.Middleware
}

// NewHandler builds the jobs handler. inspector may be nil, in which case the
// queue always reads empty.
func NewHandler(inspector QueueInspector, logger *slog.Logger, gate rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger, rbac: gate}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ManageUsers)).Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats, err := ReadQueueStats(h.inspector, QueueDefault)
	if err != nil {
		h.logger.Warn("read queue stats", slog.Any("error", err))
		httpx.Fail(w, http.StatusServiceUnavailable, "Job queue unavailable")
		return
	}
	httpx.Success(w, http.StatusOK, "", stats.Fields())
}
