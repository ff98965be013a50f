package handler

import (
	"context"
	"net/http"
	"runtime"

	"github.com/Rrens/collab-hub/internal/api/response"
	"github.com/Rrens/collab-hub/internal/hub"
	"github.com/rs/zerolog/log"
)

// StorePinger reports per-backend health
type StorePinger interface {
	Ping(ctx context.Context) (map[string]string, error)
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including store connectivity
func ReadyCheck(stores StorePinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := stores.Ping(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			response.Unavailable(w, "store not ready", status)
			return
		}

		response.OK(w, map[string]any{
			"status":   "ready",
			"backends": status,
		})
	}
}

// Stats reports live hub counters
func Stats(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := h.Stats()
		response.OK(w, map[string]any{
			"connections": stats.Connections,
			"teams":       stats.Teams,
			"resources":   stats.Resources,
			"sessions":    stats.Sessions,
			"goroutines":  runtime.NumGoroutine(),
		})
	}
}
