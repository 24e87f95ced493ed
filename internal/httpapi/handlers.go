package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/IvanBrykalov/computecore/pool"
)

type healthResponse struct {
	Status string `json:"status"`
}

type readyResponse struct {
	Status string   `json:"status"`
	Issues []string `json:"issues,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReadyz reports the pool health check; 503 while it has issues.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	h := s.coord.Health()
	if !h.Healthy {
		s.writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "degraded", Issues: h.Issues})
		return
	}
	s.writeJSON(w, http.StatusOK, readyResponse{Status: "ok"})
}

type statsResponse struct {
	coordinator.Stats
	Health pool.Health `json:"health"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Stats:  s.coord.Stats(),
		Health: s.coord.Health(),
	})
}

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
