package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion.report/internal/db"
)

// requireDB answers 503 when no session store is configured.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Session history is not enabled")
		return false
	}
	return true
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.requireDB(w) {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

// handleSession serves GET and DELETE on a single session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		sess, err := s.db.SessionByID(id)
		if err != nil {
			s.writeLookupError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sess)
	case http.MethodDelete:
		if s.recorder != nil && s.recorder.Current() == id {
			s.writeJSONError(w, http.StatusConflict, "Session is still recording")
			return
		}
		if err := s.db.DeleteSession(id); err != nil {
			s.writeLookupError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.requireDB(w) {
		return
	}

	id := r.PathValue("id")
	if _, err := s.db.SessionByID(id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	samples, err := s.db.Samples(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, samples)
}

// handleSessionChart renders a session's metrics over time as an HTML line
// chart. Query params:
//   - id (required) session ID
func (s *Server) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.requireDB(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'id' parameter")
		return
	}
	sess, err := s.db.SessionByID(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	samples, err := s.db.Samples(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}

	xs := make([]string, len(samples))
	amplitude := make([]opts.LineData, len(samples))
	stability := make([]opts.LineData, len(samples))
	symmetry := make([]opts.LineData, len(samples))
	for i, m := range samples {
		xs[i] = fmt.Sprintf("%.1f", m.SampledAt.Sub(sess.StartedAt).Seconds())
		amplitude[i] = opts.LineData{Value: m.TremorAmplitude}
		stability[i] = opts.LineData{Value: m.GaitStabilityIndex}
		symmetry[i] = opts.LineData{Value: m.GaitSymmetryIndex}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion Session", Width: "100%", Height: "560px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Session " + sess.ID,
			Subtitle: fmt.Sprintf("mode=%s started=%s samples=%d", sess.Mode, sess.StartedAt.Format("2006-01-02 15:04:05"), len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(xs).
		AddSeries("tremor amplitude", amplitude).
		AddSeries("gait stability", stability).
		AddSeries("gait symmetry", symmetry)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
