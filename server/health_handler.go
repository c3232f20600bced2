package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type HealthStatus struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
}

// HealthHandler reports whether the refresh-token registry is reachable. Backends without
// a Ping are always reported as ok.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := HealthStatus{Status: "ok", Registry: "ok"}
		status := http.StatusOK

		if pinger, ok := s.registry.(refresh.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				log.Err(err).Msg("registry health check failed")
				health = HealthStatus{Status: "degraded", Registry: "unreachable"}
				status = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, status, Envelope{Success: status == http.StatusOK, Data: health})
	}
}
