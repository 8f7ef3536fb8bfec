package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

type healthResponse struct {
	Status   string                   `json:"status"`
	Healthy  bool                     `json:"healthy"`
	Uptime   string                   `json:"uptime"`
	Channels map[string]channelHealth `json:"channels,omitempty"`
}

type channelHealth struct {
	Healthy   bool      `json:"healthy"`
	Degraded  bool      `json:"degraded,omitempty"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Healthy: true,
		Uptime:  time.Since(s.started).String(),
	}

	if s.cfg.Health != nil {
		resp.Healthy = s.cfg.Health.OverallHealth()
	}

	if s.cfg.Channels != nil {
		adapters := s.cfg.Channels.HealthAdapters()
		if len(adapters) > 0 {
			resp.Channels = make(map[string]channelHealth, len(adapters))
			for channelType, adapter := range adapters {
				status := adapter.HealthCheck(r.Context())
				resp.Channels[string(channelType)] = channelHealth{
					Healthy:   status.Healthy,
					Degraded:  status.Degraded,
					Message:   status.Message,
					LastCheck: status.LastCheck,
				}
				if !status.Healthy {
					resp.Healthy = false
				}
			}
		}
	}

	if !resp.Healthy {
		resp.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeJSON(w, []models.SessionSummary{})
		return
	}
	writeJSON(w, s.cfg.Sessions.List())
}

type steerRequest struct {
	Kind               models.SteeringKind `json:"kind"`
	Content            string              `json:"content"`
	SkipRemainingTools bool                `json:"skip_remaining_tools,omitempty"`
}

func (s *Server) handleSteerSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body steerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Kind == "" {
		body.Kind = models.SteeringInject
	}

	sess, ok := s.cfg.Sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	sess.Steering().Enqueue(models.SteeringMessage{
		Kind:               body.Kind,
		Content:            body.Content,
		Timestamp:          time.Now(),
		SkipRemainingTools: body.SkipRemainingTools,
	})
	sess.Touch()

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.cfg.Sessions.End(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
