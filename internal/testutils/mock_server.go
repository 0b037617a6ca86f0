package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockExchangeRateServer answers like api.exchangerate-api.com for any path
type MockExchangeRateServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	cadRate  float64
	failing  bool
	requests atomic.Int64
}

// NewMockExchangeRateServer starts a server returning CAD at 1.35
func NewMockExchangeRateServer() *MockExchangeRateServer {
	mock := &MockExchangeRateServer{cadRate: 1.35}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

func (m *MockExchangeRateServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mu.RLock()
	failing, cadRate := m.failing, m.cadRate
	m.mu.RUnlock()

	if failing {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		return
	}

	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
		if idx := strings.LastIndex(r.URL.Path, "/"); idx >= 0 && len(r.URL.Path) > idx+1 {
			base = r.URL.Path[idx+1:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"base":      base,
		"timestamp": time.Now().Unix(),
		"rates": map[string]float64{
			"USD": 1.0,
			"CAD": cadRate,
			"EUR": 0.85,
		},
	})
}

// SetCADRate changes the CAD rate served from now on
func (m *MockExchangeRateServer) SetCADRate(rate float64) {
	m.mu.Lock()
	m.cadRate = rate
	m.mu.Unlock()
}

// SetFailing makes every request answer 503
func (m *MockExchangeRateServer) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

// Requests returns the number of requests served
func (m *MockExchangeRateServer) Requests() int64 {
	return m.requests.Load()
}

// URL returns the mock server URL
func (m *MockExchangeRateServer) URL() string {
	return m.server.URL
}

// Close closes the mock server
func (m *MockExchangeRateServer) Close() {
	m.server.Close()
}

// MockUnsplashServer answers /search/photos with a configurable term to URL map
type MockUnsplashServer struct {
	server    *httptest.Server
	mu        sync.RWMutex
	images    map[string]string
	failing   bool
	lastQuery url.Values
	requests  atomic.Int64
}

// NewMockUnsplashServer starts a server that knows "apple" and "bananas"
func NewMockUnsplashServer() *MockUnsplashServer {
	mock := &MockUnsplashServer{
		images: map[string]string{
			"apple":   "https://images.test/apple.jpg",
			"bananas": "https://images.test/bananas.jpg",
		},
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

func (m *MockUnsplashServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mu.Lock()
	m.lastQuery = r.URL.Query()
	failing := m.failing
	imageURL := m.images[strings.ToLower(r.URL.Query().Get("query"))]
	m.mu.Unlock()

	if failing {
		http.Error(w, "rate limit exceeded", http.StatusForbidden)
		return
	}
	if r.URL.Path != "/search/photos" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	type urls struct {
		Regular string `json:"regular"`
	}
	type result struct {
		URLs urls `json:"urls"`
	}
	results := []result{}
	if imageURL != "" {
		results = append(results, result{URLs: urls{Regular: imageURL}})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":   len(results),
		"results": results,
	})
}

// SetImage registers the image URL returned for a search term
func (m *MockUnsplashServer) SetImage(term, imageURL string) {
	m.mu.Lock()
	m.images[strings.ToLower(term)] = imageURL
	m.mu.Unlock()
}

// SetFailing makes every request answer 403
func (m *MockUnsplashServer) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

// LastQuery returns the query string of the most recent request
func (m *MockUnsplashServer) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// Requests returns the number of requests served
func (m *MockUnsplashServer) Requests() int64 {
	return m.requests.Load()
}

// URL returns the mock server URL
func (m *MockUnsplashServer) URL() string {
	return m.server.URL
}

// Close closes the mock server
func (m *MockUnsplashServer) Close() {
	m.server.Close()
}
