package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/interview-recorder/internal/metrics"
	"github.com/terra-clan/interview-recorder/internal/recorder"
	"github.com/terra-clan/interview-recorder/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// classifyError maps domain errors to an HTTP status and error code
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidToken):
		return http.StatusNotFound, "invalid_token"
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, session.ErrNoChunks):
		return http.StatusConflict, "no_chunks"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, session.ErrUpload):
		return http.StatusBadGateway, "upload_failed"
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, recorder.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, recorder.ErrDeviceBusy):
		return http.StatusConflict, "device_busy"
	case errors.Is(err, recorder.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondSessionError writes err using the session error mapping
func respondSessionError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("session operation failed", "error", err)
	}
	respondError(w, status, code, err.Error())
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

type metricsResponse struct {
	metrics.Snapshot
	LiveSessions int `json:"live_sessions"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{LiveSessions: len(s.manager.List())}
	if s.metrics != nil {
		resp.Snapshot = s.metrics.GetSnapshot()
	}
	respondJSON(w, http.StatusOK, resp)
}
