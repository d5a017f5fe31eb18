// Package httputil provides a client for a running motiond and the HTTP
// abstractions that make it testable.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/version"
)

// HTTPClient abstracts HTTP operations for testability.
// *http.Client satisfies it; MockHTTPClient is the test double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reading is the metrics document served by /api/metrics.
type Reading struct {
	TremorAmplitude    float64         `json:"tremor_amplitude"`
	GaitStabilityIndex float64         `json:"gait_stability_index"`
	GaitSymmetryIndex  float64         `json:"gait_symmetry_index"`
	TremorTrend        string          `json:"tremor_trend"`
	SessionStepCount   uint            `json:"session_step_count"`
	IsActive           bool            `json:"is_active"`
	Mode               string          `json:"mode"`
	FramesProcessed    uint64          `json:"frames_processed"`
	LastError          *ReadingError   `json:"last_error,omitempty"`
	Feedback           motion.Feedback `json:"feedback"`
	SessionID          string          `json:"session_id,omitempty"`
}

// ReadingError is the encoded form of a session error.
type ReadingError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// APIError is a non-2xx answer from motiond.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("motiond returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the motiond HTTP API.
type Client struct {
	baseURL string
	http    HTTPClient
}

// NewClient returns a client for the daemon at baseURL, e.g.
// "http://localhost:8080". A nil c uses an http.Client with a 10s timeout.
func NewClient(baseURL string, c HTTPClient) *Client {
	if c == nil {
		c = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

// Metrics fetches the current snapshot.
func (c *Client) Metrics(ctx context.Context) (Reading, error) {
	var r Reading
	err := c.call(ctx, http.MethodGet, "/api/metrics", nil, &r)
	return r, err
}

// Start, Stop and Reset drive the session lifecycle and return the
// resulting state.
func (c *Client) Start(ctx context.Context) (Reading, error) {
	return c.lifecycle(ctx, "start")
}

func (c *Client) Stop(ctx context.Context) (Reading, error) {
	return c.lifecycle(ctx, "stop")
}

func (c *Client) Reset(ctx context.Context) (Reading, error) {
	return c.lifecycle(ctx, "reset")
}

func (c *Client) lifecycle(ctx context.Context, action string) (Reading, error) {
	var r Reading
	err := c.call(ctx, http.MethodPost, "/api/session/"+action, nil, &r)
	return r, err
}

// SetMode switches the analysis mode.
func (c *Client) SetMode(ctx context.Context, m motion.Mode) (Reading, error) {
	var r Reading
	body, err := json.Marshal(map[string]motion.Mode{"mode": m})
	if err != nil {
		return r, err
	}
	err = c.call(ctx, http.MethodPost, "/api/mode", body, &r)
	return r, err
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent("motion-report"))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// MockHTTPClient provides a testable HTTP client implementation.
type MockHTTPClient struct {
	mu        sync.Mutex
	requests  []*http.Request
	responses []MockResponse
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response to be returned by subsequent requests.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: statusCode, Body: body})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Error: err})
	return m
}

// Do records the request and returns the next queued response, or an empty
// 200 when the queue is exhausted.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	resp := MockResponse{StatusCode: http.StatusOK}
	if len(m.responses) > 0 {
		resp, m.responses = m.responses[0], m.responses[1:]
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns the recorded requests in order.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}
