// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// Registry is an in-memory stand-in for the remote module registry.
// It serves registered files by path and counts every request it receives.
type Registry struct {
	Server *httptest.Server

	mu       sync.RWMutex
	files    map[string]string
	requests map[string]int
	queries  map[string][]string

	// OnRequest, when set, runs before a request is served
	OnRequest func(r *http.Request)
}

// NewRegistry starts a registry server; callers must Close it
func NewRegistry() *Registry {
	reg := &Registry{
		files:    make(map[string]string),
		requests: make(map[string]int),
		queries:  make(map[string][]string),
	}
	reg.Server = httptest.NewServer(http.HandlerFunc(reg.serve))
	return reg
}

// URL returns the registry root URL
func (r *Registry) URL() string {
	return r.Server.URL
}

// Close shuts the server down
func (r *Registry) Close() {
	r.Server.Close()
}

// AddFile registers content under path (e.g. "/preact/package.json")
func (r *Registry) AddFile(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
}

// Requests returns how many times path was requested
func (r *Registry) Requests(path string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requests[path]
}

// TotalRequests returns the number of requests across all paths
func (r *Registry) TotalRequests() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, n := range r.requests {
		total += n
	}
	return total
}

// Queries returns the raw query strings received for path, in arrival order
func (r *Registry) Queries(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.queries[path]...)
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	if r.OnRequest != nil {
		r.OnRequest(req)
	}

	r.mu.Lock()
	r.requests[req.URL.Path]++
	r.queries[req.URL.Path] = append(r.queries[req.URL.Path], req.URL.RawQuery)
	content, ok := r.files[req.URL.Path]
	r.mu.Unlock()

	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(content))
}
