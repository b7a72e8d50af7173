package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dq-agent/internal/domain/model"
	"dq-agent/internal/infra/logging"
	"dq-agent/internal/infra/ws"
	"dq-agent/internal/usecase"
)

type agentRequest struct {
	Text         string `json:"text"`
	WebsocketURL string `json:"websocket_url,omitempty"`
}

type agentSyncResponse struct {
	Text           string `json:"text"`
	ProcessingType string `json:"processing_type"`
}

type agentAsyncResponse struct {
	TaskID         string           `json:"task_id"`
	Status         model.TaskStatus `json:"status"`
	ProcessingType string           `json:"processing_type"`
	Message        string           `json:"message"`
	WebsocketURL   string           `json:"websocket_url,omitempty"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	user, err := s.verifier.IdentityFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing 'text' field in request"})
		return
	}

	ctx := logging.WithUserID(r.Context(), user.ID)
	res, err := s.dispatchUC.Handle(ctx, user, req.Text, clientIP(r), req.WebsocketURL)
	if err != nil {
		s.log.Error().Err(err).Str("username", user.Name).Msg("agent request failed")
		writeError(w, err)
		return
	}

	if res.Path == usecase.PathSync {
		writeJSON(w, http.StatusOK, agentSyncResponse{Text: res.Text, ProcessingType: "sync"})
		return
	}
	writeJSON(w, http.StatusOK, agentAsyncResponse{
		TaskID:         res.TaskID,
		Status:         res.Status,
		ProcessingType: "async",
		Message:        res.Message,
		WebsocketURL:   res.WebsocketURL,
	})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	user, err := s.verifier.IdentityFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}

	taskID := chi.URLParam(r, "taskID")
	ctx := logging.WithTaskID(logging.WithUserID(r.Context(), user.ID), taskID)
	session, err := s.dispatchUC.TaskStatus(ctx, user, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type notifyRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// handleNotify is the push-notify egress endpoint: HTTP 200 is the
// positive acknowledgement the retrying dispatcher looks for, so it is
// returned only when the frame actually reached a live channel.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing username"})
		return
	}

	if err := s.hub.Push(req.Username, ws.MsgTypeNotification, req.Message); err != nil {
		s.log.Warn().Err(err).Str("username", req.Username).Msg("push delivery failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "delivery failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	var ev model.JobEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
		return
	}
	s.log.Info().Str("session_id", ev.SessionID).Str("status", string(ev.Status)).Msg("received job result from watcher")

	ctx := logging.WithSessID(r.Context(), ev.SessionID)
	ctx = logging.WithRunID(ctx, ev.RunID)
	ctx = logging.WithJobName(ctx, ev.JobName)
	reply, err := s.resultUC.HandleResult(ctx, ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "response": reply})
}

func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	var ev model.JobEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
		return
	}

	ctx := logging.WithJobName(logging.WithSessID(r.Context(), ev.SessionID), ev.JobName)
	s.resultUC.HandleProgress(ctx, ev)
	writeJSON(w, http.StatusOK, map[string]string{"status": "progress_processed"})
}
