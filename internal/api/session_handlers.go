package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/interview-recorder/internal/session"
)

type createSessionRequest struct {
	Token string `json:"token"`
}

// action is a session operation the UI can trigger
type action struct {
	name string
	run  func(*session.Controller, context.Context) error
}

var (
	actionProceed = action{"proceed", (*session.Controller).Proceed}
	actionCamera  = action{"camera", (*session.Controller).RequestCameraAccess}
	actionBegin   = action{"begin", (*session.Controller).BeginInterview}
	actionStart   = action{"start", (*session.Controller).StartRecording}
	actionStop    = action{"stop", (*session.Controller).StopRecording}
	actionSubmit  = action{"submit", (*session.Controller).SubmitAndAdvance}
)

var actionsByName = map[string]action{
	actionProceed.name: actionProceed,
	actionCamera.name:  actionCamera,
	actionBegin.name:   actionBegin,
	actionStart.name:   actionStart,
	actionStop.name:    actionStop,
	actionSubmit.name:  actionSubmit,
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "token is required")
		return
	}

	c, err := s.manager.Create(r.Context(), req.Token)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionFromContext(r.Context()).Snapshot())
}

// handleDeleteSession tears the session down, as when the candidate navigates away
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	c := SessionFromContext(r.Context())
	if err := s.manager.Delete(c.ID()); err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session closed",
	})
}

// handleAction runs a session operation and responds with the resulting snapshot
func (s *Server) handleAction(a action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := SessionFromContext(r.Context())
		if err := a.run(c, r.Context()); err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, c.Snapshot())
	}
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "journal_disabled", "session journal is not configured")
		return
	}

	limit := 200
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	id := chi.URLParam(r, "id")
	events, err := s.history.ListSession(r.Context(), id, limit)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}
