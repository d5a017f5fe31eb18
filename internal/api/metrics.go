package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/motion.report/internal/motion"
)

// metricsResponse is a snapshot plus the cues it triggers.
type metricsResponse struct {
	motion.Snapshot
	Feedback motion.Feedback `json:"feedback"`
}

func newMetricsResponse(s motion.Snapshot) metricsResponse {
	return metricsResponse{Snapshot: s, Feedback: motion.EvaluateFeedback(s)}
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, newMetricsResponse(s.engine.Snapshot()))
}

const wsWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served to the local dashboard and to apps on the same
	// network; there are no cookies to protect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMetrics pushes the current snapshot to a websocket client every push
// interval until the client goes away.
func (s *Server) streamMetrics(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so control messages are handled and a close is
	// noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := s.clock.NewTicker(s.push)
	defer ticker.Stop()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(newMetricsResponse(s.engine.Snapshot()))
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C():
			if err := send(); err != nil {
				logf("websocket write failed: %v", err)
				return
			}
		}
	}
}
