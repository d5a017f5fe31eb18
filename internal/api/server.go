// Package api serves the motion engine over HTTP: live metrics, session
// lifecycle, frame submission and the recorded session history.
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/admission"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Prefixed("api")

// Engine is the part of *motion.Engine the API drives.
type Engine interface {
	Snapshot() motion.Snapshot
	Start()
	Stop()
	Reset()
	SetMode(m motion.Mode)
}

// Config wires a Server. Engine and Frames are required; the rest are
// optional and disable their routes' backing when nil.
type Config struct {
	Engine Engine
	// Frames receives frames posted to /api/frames.
	Frames *admission.Mailbox
	// DB backs the session history routes. Nil answers them with 503.
	DB *db.DB
	// Recorder, when set, is ticked after lifecycle calls so sessions open
	// and close without waiting for the next sample.
	Recorder *db.Recorder
	// Feeds are reported by /api/admission alongside the HTTP feed.
	Feeds map[string]*ingest.Counters
	// PushInterval is the websocket snapshot rate. Defaults to 100ms.
	PushInterval time.Duration
	Clock        timeutil.Clock
}

type Server struct {
	engine   Engine
	frames   *admission.Mailbox
	db       *db.DB
	recorder *db.Recorder
	feeds    map[string]*ingest.Counters
	httpFeed *ingest.Counters
	push     time.Duration
	clock    timeutil.Clock
}

func NewServer(cfg Config) *Server {
	s := &Server{
		engine:   cfg.Engine,
		frames:   cfg.Frames,
		db:       cfg.DB,
		recorder: cfg.Recorder,
		feeds:    cfg.Feeds,
		httpFeed: &ingest.Counters{},
		push:     cfg.PushInterval,
		clock:    cfg.Clock,
	}
	if s.push <= 0 {
		s.push = 100 * time.Millisecond
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", lrw.ResponseWriter)
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// AttachRoutes mounts the API and chart handlers on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/metrics/ws", s.streamMetrics)
	mux.HandleFunc("/api/session/start", s.lifecycle(s.startSession))
	mux.HandleFunc("/api/session/stop", s.lifecycle(s.stopSession))
	mux.HandleFunc("/api/session/reset", s.lifecycle(s.resetSession))
	mux.HandleFunc("/api/mode", s.setMode)
	mux.HandleFunc("/api/frames", s.submitFrame)
	mux.HandleFunc("/api/admission", s.showAdmission)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}", s.handleSession)
	mux.HandleFunc("/api/sessions/{id}/samples", s.listSamples)
	mux.HandleFunc("/charts/session", s.handleSessionChart)
}

// ServeMux returns a fresh mux carrying only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("failed to write response: %v", err)
	}
}
