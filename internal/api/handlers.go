package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"reelcast/internal/analytics"
	"reelcast/internal/auth"
	"reelcast/internal/media"
	"reelcast/internal/observability/metrics"
	"reelcast/internal/store"
	"reelcast/internal/transcode"
)

// Handler carries the collaborators shared by every endpoint.
type Handler struct {
	Store     store.Repository
	Sessions  *auth.SessionManager
	Media     *media.Store
	Queue     *transcode.Queue
	Analytics analytics.Sink
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// NewHandler wires a Handler with sane defaults for the optional
// collaborators.
func NewHandler(repo store.Repository, sessions *auth.SessionManager, mediaStore *media.Store) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return &Handler{
		Store:     repo,
		Sessions:  sessions,
		Media:     mediaStore,
		Analytics: analytics.NopSink{},
	}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return h.Sessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func (h *Handler) sink() analytics.Sink {
	if h.Analytics != nil {
		return h.Analytics
	}
	return analytics.NopSink{}
}

// contextWithTimeout detaches background work from the request lifetime; the
// response must not wait on it.
func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// Health reports datastore connectivity and transcode backlog depth.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	payload := map[string]any{"status": status}
	if h.Queue != nil {
		payload["queueDepth"] = h.Queue.Depth()
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}
