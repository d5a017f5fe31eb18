// Package serialmux fans out the line-oriented output of a pose coprocessor on
// a serial port to any number of subscribers, and serialises commands written
// back to the device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/motion.report/internal/monitoring"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is the number of lines a slow subscriber may fall behind
// before lines are skipped for it.
const subscriberBuffer = 16

var logf = monitoring.Prefixed("serialmux")

var sendCommandTemplate = template.Must(template.New("send-command").Parse(sendCommandHTML))

// SerialMux multiplexes a single serial port between many line subscribers.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	lines   atomic.Uint64
	skipped atomic.Uint64
}

// SerialMuxInterface is implemented by SerialMux and DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe registers a channel that receives every line read from the
	// port. The returned ID is passed to Unsubscribe.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command to the device.
	SendCommand(string) error
	// Monitor reads lines until ctx is cancelled or the port fails.
	Monitor(context.Context) error
	// Initialise configures the device for keypoint streaming.
	Initialise(StreamOptions) error
	Close() error

	// AttachAdminRoutes mounts the tail and send-command pages under the
	// tsweb debugger at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// StreamOptions are the settings pushed to the coprocessor by Initialise.
type StreamOptions struct {
	// FrameRate is the requested pose estimation rate in Hz.
	FrameRate int
	// MinConfidence asks the device to omit keypoints below this score.
	// Zero sends everything and leaves filtering to the engine.
	MinConfidence float64
}

// NewSerialMux wraps port. Monitor must be called to start reading.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes the subscriber channel for id.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialise stops any running stream, selects JSON keypoint output and
// restarts streaming at the requested rate.
func (s *SerialMux[T]) Initialise(opts StreamOptions) error {
	commands := []string{
		"STREAM OFF",
		"FORMAT JSON",
		"JOINTS right_wrist,left_wrist,right_ankle,left_ankle",
	}
	if opts.FrameRate > 0 {
		commands = append(commands, fmt.Sprintf("RATE %d", opts.FrameRate))
	}
	if opts.MinConfidence > 0 {
		commands = append(commands, fmt.Sprintf("MINCONF %.2f", opts.MinConfidence))
	}
	commands = append(commands, "STREAM ON")

	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and delivers each one to every
// subscriber. A subscriber whose buffer is full misses the line rather than
// stalling the port.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so the loop below can
	// still observe cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.closing.Load() {
				return nil
			}
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			s.lines.Add(1)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					s.skipped.Add(1)
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	logf("closing port after %d lines (%d skipped)", s.lines.Load(), s.skipped.Load())
	return s.port.Close()
}

// Counters returns the number of lines read and the number of per-subscriber
// deliveries skipped because a subscriber was full.
func (s *SerialMux[T]) Counters() (lines, skipped uint64) {
	return s.lines.Load(), s.skipped.Load()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the pose coprocessor", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", command)
	})

	// Server-sent events, one per line read from the port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		serveTail(w, r, s)
	})
}

// serveTail streams lines from sub as server-sent events until the client
// goes away or the subscription is closed.
func serveTail(w http.ResponseWriter, r *http.Request, sub SerialMuxInterface) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, c := sub.Subscribe()
	defer sub.Unsubscribe(id)

	io.WriteString(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

const sendCommandHTML = `<!DOCTYPE html>
<html>
<head><title>pose coprocessor</title></head>
<body>
<h2>Send command</h2>
<form id="cmd">
  <input name="command" size="40" placeholder="STREAM ON" autofocus>
  <button type="submit">Send</button>
</form>
<pre id="result"></pre>
<h2>Tail</h2>
<pre id="tail" style="height: 30em; overflow-y: scroll"></pre>
<script>
document.getElementById("cmd").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const res = await fetch("send-command-api", {method: "POST", body: new FormData(ev.target)});
  document.getElementById("result").textContent = await res.text();
});
const tail = document.getElementById("tail");
new EventSource("tail").onmessage = (ev) => {
  tail.textContent += ev.data + "\n";
  if (tail.textContent.length > 100000) tail.textContent = tail.textContent.slice(-50000);
  tail.scrollTop = tail.scrollHeight;
};
</script>
</body>
</html>
`
