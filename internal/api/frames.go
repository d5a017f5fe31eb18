package api

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/banshee-data/motion.report/internal/admission"
	"github.com/banshee-data/motion.report/internal/ingest"
)

// submitFrame posts one encoded frame to the admission mailbox. A malformed
// body is still recorded on the session as a pose estimation failure and is
// answered with 400.
func (s *Server) submitFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, ingest.MaxFrameSize+1))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read body: %v", err))
		return
	}

	submitted, err := ingest.Deliver(body, s.frames, s.httpFeed)
	switch {
	case !submitted:
		s.writeJSONError(w, http.StatusServiceUnavailable, "Frame admission is closed")
	case err != nil:
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	}
}

type feedStats struct {
	Name string `json:"name"`
	ingest.CounterStats
}

type admissionResponse struct {
	Mailbox admission.Stats `json:"mailbox"`
	Feeds   []feedStats     `json:"feeds"`
}

func (s *Server) showAdmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := admissionResponse{
		Mailbox: s.frames.Stats(),
		Feeds:   []feedStats{{Name: "http", CounterStats: s.httpFeed.Stats()}},
	}
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		resp.Feeds = append(resp.Feeds, feedStats{Name: name, CounterStats: s.feeds[name].Stats()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}
