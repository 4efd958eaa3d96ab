package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nyimbi/Games/internal/realtime"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// StatsProvider reports live room counts.
type StatsProvider interface {
	Stats() realtime.Stats
}

type Handler struct {
	checks map[string]Checker
	stats  StatsProvider
	logger *slog.Logger
}

// NewHandler builds the health endpoint. stats may be nil.
func NewHandler(logger *slog.Logger, checks map[string]Checker, stats StatsProvider) *Handler {
	return &Handler{checks: checks, stats: stats, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type result struct {
	Status string `json:"status"`
}

// Response is the body of GET /healthz.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]result `json:"checks"`
	Rooms  *realtime.Stats   `json:"rooms,omitempty"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := Response{Status: "ok", Checks: make(map[string]result, len(h.checks))}
	status := http.StatusOK

	for name, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Error("health check failed", "name", name, "error", err)
			resp.Checks[name] = result{Status: "error"}
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = result{Status: "ok"}
	}

	if h.stats != nil {
		s := h.stats.Stats()
		resp.Rooms = &s
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
