// Package httputil holds the HTTP client seam used to reach the datalogger
// and the JSON response helpers of the web API.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds a whole request to the datalogger, body included.
const DefaultTimeout = 2 * time.Minute

// HTTPClient abstracts HTTP operations for testability.
// Use StandardClient for production; MockHTTPClient for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, or a client with DefaultTimeout when c is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockResponse is a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    http.Header
	Error      error
}

// MockHTTPClient answers requests by URL path. Unknown paths get a 404.
type MockHTTPClient struct {
	mu       sync.Mutex
	routes   map[string]*MockResponse
	Requests []*http.Request
	// DefaultError, when set, fails every request.
	DefaultError error
}

// NewMockHTTPClient creates a mock with no routes.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{routes: make(map[string]*MockResponse)}
}

// Handle sets the response for path.
func (m *MockHTTPClient) Handle(path string, statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = &MockResponse{StatusCode: statusCode, Body: body, Headers: make(http.Header)}
	return m
}

// HandleError makes requests for path fail with err.
func (m *MockHTTPClient) HandleError(path string, err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = &MockResponse{Error: err}
	return m
}

// Do records the request and returns the response registered for its path.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	resp, ok := m.routes[req.URL.Path]
	if !ok {
		resp = &MockResponse{StatusCode: http.StatusNotFound, Body: "404 Not Found", Headers: make(http.Header)}
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Header:     resp.Headers.Clone(),
		Request:    req,
	}, nil
}

// Paths returns the paths requested so far, in order.
func (m *MockHTTPClient) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Requests))
	for i, r := range m.Requests {
		out[i] = r.URL.Path
	}
	return out
}
