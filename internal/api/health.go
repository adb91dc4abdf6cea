package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 3 * time.Second

// healthResponse is the /health body.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Store      string            `json:"store"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports store and component health.
//
// The store decides availability: if it fails the answer is 503. A failed
// optional component only degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Store:   "ok",
	}
	status := http.StatusOK

	if err := s.check(r.Context(), s.service); err != nil {
		s.logger.Warn("store health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	if len(s.components) > 0 {
		resp.Components = make(map[string]string, len(s.components))
		for name, component := range s.components {
			if err := s.check(r.Context(), component); err != nil {
				resp.Components[name] = err.Error()
				if resp.Status == "ok" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

func (s *Server) check(ctx context.Context, checker HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return checker.HealthCheck(ctx)
}
