package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tournethub/coordinator/internal/journal"
	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/state"
)

// ReadinessProvider exposes coordinator state required for readiness checks.
type ReadinessProvider interface {
	SessionCount() int
	StartupError() error
	Uptime() time.Duration
}

// StatsProvider returns a point-in-time view of coordinator activity.
type StatsProvider interface {
	Stats() Stats
}

// Stats aggregates the counters surfaced by the stats endpoint.
type Stats struct {
	Sessions       int                     `json:"sessions"`
	UptimeSeconds  float64                 `json:"uptime_seconds"`
	Broadcasts     uint64                  `json:"broadcasts"`
	DroppedPackets uint64                  `json:"dropped_packets"`
	Entities       state.Counts            `json:"entities"`
	Tournaments    map[string]state.Counts `json:"tournaments"`
	Journal        journal.RecorderStats   `json:"journal"`
}

// Disconnector forcibly closes a named client session.
type Disconnector interface {
	DisconnectSession(ctx context.Context, sessionID, reason string) error
}

// DisconnectorFunc adapts a function into a Disconnector.
type DisconnectorFunc func(ctx context.Context, sessionID, reason string) error

// DisconnectSession implements Disconnector.
func (f DisconnectorFunc) DisconnectSession(ctx context.Context, sessionID, reason string) error {
	return f(ctx, sessionID, reason)
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Stats        StatsProvider
	Disconnector Disconnector
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the coordinator operational handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	stats        StatsProvider
	disconnector Disconnector
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		stats:        opts.Stats,
		disconnector: opts.Disconnector,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
	}
}

// Routes builds the chi router serving the operational endpoints.
func (h *HandlerSet) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPTraceMiddleware(h.logger))

	r.Get("/healthz", h.LivenessHandler())
	r.Get("/readyz", h.ReadinessHandler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.StatsHandler())
		r.Post("/connections/{id}/disconnect", h.DisconnectHandler())
	})
	return r
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports coordinator readiness, including session counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Sessions      int     `json:"sessions"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Sessions = h.readiness.SessionCount()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// StatsHandler emits the aggregated activity counters as JSON.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.stats == nil {
			http.Error(w, "statistics unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.stats.Stats())
	}
}

// DisconnectHandler authorises and triggers a forced session disconnect.
func (h *HandlerSet) DisconnectHandler() http.HandlerFunc {
	type response struct {
		Status  string `json:"status"`
		Session string `json:"session"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		reqLogger := h.logger.With(
			logging.String("handler", "disconnect"),
			logging.String("session_id", sessionID),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken == "" {
			reqLogger.Warn("disconnect denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("disconnect denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("disconnect denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.disconnector == nil {
			reqLogger.Warn("disconnect denied: no disconnector configured")
			http.Error(w, "session control is unavailable", http.StatusServiceUnavailable)
			return
		}
		reason := strings.TrimSpace(r.URL.Query().Get("reason"))
		if reason == "" {
			reason = "disconnected by administrator"
		}
		if err := h.disconnector.DisconnectSession(r.Context(), sessionID, reason); err != nil {
			reqLogger.Error("disconnect failed", logging.Error(err))
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		reqLogger.Info("session disconnected")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Session: sessionID})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
