package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
)

// MockDiscordServer is a test server that mocks Discord REST API responses. Handlers are keyed by
// "METHOD /path" with the API version prefix stripped, e.g. "GET /guilds/1/channels".
type MockDiscordServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest is one request the mock received.
type RecordedRequest struct {
	Key  string
	Body []byte
}

var apiVersionPrefix = regexp.MustCompile(`^/api/v\d+`)

// NewMockDiscordServer creates a new mock Discord API server.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + apiVersionPrefix.ReplaceAllString(r.URL.Path, "")
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test mock
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{Key: key, Body: body})
		m.mu.Unlock()
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Unknown", "code": 0}`)) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// Client returns an http.Client whose requests, whatever their host, are served by the mock.
func (m *MockDiscordServer) Client() *http.Client {
	target, _ := url.Parse(m.URL) //nolint:errcheck // httptest URL is well formed
	return &http.Client{Transport: redirectTransport{target: target}}
}

// Requests returns a copy of every request received so far.
func (m *MockDiscordServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// MockJSON serves body as JSON for key.
func (m *MockDiscordServer) MockJSON(key string, body any) {
	m.Handlers[key] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockStatus answers key with an API error of the given status.
func (m *MockDiscordServer) MockStatus(key string, status int) {
	m.Handlers[key] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message": "Missing Permissions", "code": 50013}`)) //nolint:errcheck // test mock response
	}
}

// MockNoContent answers key with 204.
func (m *MockDiscordServer) MockNoContent(key string) {
	m.Handlers[key] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

type redirectTransport struct{ target *url.URL }

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}
