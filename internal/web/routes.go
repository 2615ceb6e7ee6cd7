package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/abdulachik/threadbot/internal/poller"
)

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /{$}", s.handleCompose)
	s.mux.HandleFunc("POST /{$}", s.handleRecompose)
	s.mux.HandleFunc("POST /send", s.handleSend)
	s.mux.HandleFunc("POST /schedule", s.handleSchedule)
	s.mux.HandleFunc("POST /credentials", s.handleSaveCredentials)
	s.mux.HandleFunc("GET /jobs", s.handleListJobs)
	s.mux.HandleFunc("POST /jobs/{id}/delete", s.handleDeleteJob)
}

type healthResponse struct {
	Status     string                         `json:"status"`
	LastTick   *time.Time                     `json:"last_tick,omitempty"`
	Components map[string]poller.HealthStatus `json:"components,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK

	if s.health != nil {
		resp.Components = s.health.GetAllStatuses()
		if tick := s.health.LastTick(); !tick.IsZero() {
			resp.LastTick = &tick
		}
		if !s.health.IsOverallHealthy() {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
