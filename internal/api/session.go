package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/motion.report/internal/motion"
)

// lifecycleResponse is returned by the session and mode routes.
type lifecycleResponse struct {
	metricsResponse
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) lifecycle(action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		action()
		s.writeJSON(w, http.StatusOK, s.lifecycleResponse())
	}
}

func (s *Server) lifecycleResponse() lifecycleResponse {
	resp := lifecycleResponse{metricsResponse: newMetricsResponse(s.engine.Snapshot())}
	if s.recorder != nil {
		resp.SessionID = s.recorder.Current()
	}
	return resp
}

func (s *Server) startSession() {
	s.engine.Start()
	s.syncRecorder()
}

func (s *Server) stopSession() {
	s.engine.Stop()
	s.syncRecorder()
}

// resetSession clears the engine. While recording, the current session is
// closed with its pre-reset counters and a new one is opened.
func (s *Server) resetSession() {
	if s.recorder == nil {
		s.engine.Reset()
		return
	}
	if err := s.recorder.Restart(s.engine.Reset); err != nil {
		logf("recorder: %v", err)
	}
}

func (s *Server) syncRecorder() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Tick(); err != nil {
		logf("recorder: %v", err)
	}
}

type modeRequest struct {
	Mode *motion.Mode `json:"mode"`
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req modeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Mode == nil {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'mode'")
		return
	}

	s.engine.SetMode(*req.Mode)
	s.writeJSON(w, http.StatusOK, s.lifecycleResponse())
}
