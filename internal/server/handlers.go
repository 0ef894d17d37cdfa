package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"articleforge/internal/core"
	"articleforge/internal/logger"
	"articleforge/internal/seo"
)

// maxScoreBody bounds POST /api/score payloads.
const maxScoreBody = 2 << 20

// HealthResponse is the /health body
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse is the /api/status body
type StatusResponse struct {
	Uptime    string     `json:"uptime"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	LastBatch *BatchView `json:"last_batch,omitempty"`
}

// BatchView is the JSON form of pipeline.BatchStats
type BatchView struct {
	RunID       string `json:"run_id"`
	Listed      int    `json:"listed"`
	Fresh       int    `json:"fresh"`
	Cached      int    `json:"cached"`
	Fallback    int    `json:"fallback"`
	Skipped     int    `json:"skipped"`
	WriteErrors int    `json:"write_errors"`
	Duration    string `json:"duration"`
}

// ScoreRequest is the POST /api/score body
type ScoreRequest struct {
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	References []core.Reference `json:"references"`
}

// handleHealth runs every configured check with a short timeout
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.options.Checks))
	healthy := true
	for name, check := range s.options.Checks {
		if err := check(ctx); err != nil {
			checks[name] = "error"
			healthy = false
			logger.Warn("Health check failed", "check", name, "error", err.Error())
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Running: s.running,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		resp.LastRun = &last
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	if st := s.lastStats; st != nil {
		resp.LastBatch = &BatchView{
			RunID:       st.RunID,
			Listed:      st.Listed,
			Fresh:       st.Fresh,
			Cached:      st.Cached,
			Fallback:    st.Fallback,
			Skipped:     st.Skipped,
			WriteErrors: st.WriteErrors,
			Duration:    st.Duration.String(),
		}
	}
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, resp)
}

// handleScore runs the quality analyzer on submitted HTML
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.respondJSON(w, http.StatusOK, seo.Analyze(req.Content, req.Title, req.References))
}

// handleTriggerRun starts a batch in the background
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	busy := s.running
	s.mu.Unlock()
	if busy {
		s.respondError(w, http.StatusConflict, ErrBatchRunning.Error())
		return
	}

	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		// detached from the request; the batch outlives the response
		if _, err := s.RunBatch(s.baseCtx); err != nil && !errors.Is(err, ErrBatchRunning) {
			logger.Error("Triggered batch failed", err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// requireAdminToken protects batch triggers with a bearer token
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.options.AdminToken == "" {
			s.respondError(w, http.StatusForbidden, "batch triggers are disabled")
			return
		}

		got := []byte(r.Header.Get("Authorization"))
		want := []byte("Bearer " + s.options.AdminToken)
		if subtle.ConstantTimeCompare(got, want) != 1 {
			logger.Warn("Invalid admin token attempt", "remote_addr", r.RemoteAddr)
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"status":  status,
			"message": message,
		},
	})
}
