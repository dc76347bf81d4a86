package api

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/config"
	"github.com/importsize/importsize/internal/observability"
	"github.com/importsize/importsize/internal/testutil"
)

func testConfig(registryRoot string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:      ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  5 * time.Second,
			BodyLimit:    1024 * 1024,
		},
		Registry: config.RegistryConfig{
			Root:            registryRoot,
			Conditions:      []string{"browser", "import", "default"},
			JSRManifests:    []string{"jsr.json", "deno.json", "deno.jsonc"},
			UserAgent:       "importsize-test",
			Timeout:         5 * time.Second,
			MaxResponseSize: 1024 * 1024,
		},
		Cache:   config.CacheConfig{Modules: 50, Manifests: 50},
		Bundler: config.BundlerConfig{SuppressMarker: "PLUGIN_TIMINGS", Target: "esnext", Platform: "browser"},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T) (*Server, *testutil.Registry) {
	t.Helper()
	reg := testutil.NewRegistry()
	t.Cleanup(reg.Close)
	reg.AddFile("/tiny/package.json", `{"exports": {".": {"browser": "./index.js"}}}`)
	reg.AddFile("/tiny/index.js", `export const answer = "forty-two"; export const unused = "never";`)

	cfg := testConfig(reg.URL())
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	stack, err := bundler.NewStack(cfg, metrics)
	require.NoError(t, err)

	return NewServer(cfg, stack, metrics), reg
}

func TestServer_Health(t *testing.T) {
	server, reg := newTestServer(t)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp.Body, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, reg.URL(), body["registry"])
	cache := body["cache"].(map[string]interface{})
	assert.Equal(t, float64(0), cache["modules"])
	assert.Equal(t, float64(50), cache["capacity"])
}

func TestServer_BundleEndToEnd(t *testing.T) {
	server, reg := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/bundle",
		strings.NewReader(`{"imports":[{"id":"a","specifier":"tiny","names":"{ answer }"}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req, 30_000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var outcome bundler.Outcome
	decode(t, resp.Body, &outcome)
	require.NotNil(t, outcome.Result, "warnings: %v", outcome.Warnings)
	assert.Contains(t, outcome.Result.Code, "forty-two")
	assert.NotContains(t, outcome.Result.Code, "never")
	assert.Equal(t, 1, reg.Requests("/tiny/index.js"))

	// the health endpoint reflects the warm cache
	resp, err = server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	var health map[string]interface{}
	decode(t, resp.Body, &health)
	assert.Equal(t, float64(2), health["cache"].(map[string]interface{})["modules"])
}

func TestServer_Metrics(t *testing.T) {
	server, _ := newTestServer(t)

	_, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/resolve?specifier=tiny", nil))
	require.NoError(t, err)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "importsize_resolutions_total")
	assert.Contains(t, string(body), "importsize_http_requests_total")
}

func TestServer_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp.Body, &body)
	assert.Equal(t, "Not Found", body.Error)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestServer_RateLimit(t *testing.T) {
	reg := testutil.NewRegistry()
	t.Cleanup(reg.Close)
	reg.AddFile("/tiny/package.json", `{"exports": {".": {"browser": "./index.js"}}}`)

	cfg := testConfig(reg.URL())
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Max: 1, Window: time.Minute, Backend: "local"}
	stack, err := bundler.NewStack(cfg, nil)
	require.NoError(t, err)
	server := NewServer(cfg, stack, nil)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/resolve?specifier=tiny", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = server.App().Test(httptest.NewRequest("GET", "/api/v1/resolve?specifier=tiny", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp.Body, &body)
	assert.Equal(t, "RATE_LIMITED", body["code"])

	// Health is not limited
	resp, err = server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServer_RateLimitFallsBackToMemory(t *testing.T) {
	reg := testutil.NewRegistry()
	t.Cleanup(reg.Close)

	cfg := testConfig(reg.URL())
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Max: 5, Window: time.Minute, Backend: "redis", RedisURL: "redis://127.0.0.1:1/0"}
	stack, err := bundler.NewStack(cfg, nil)
	require.NoError(t, err)

	server := NewServer(cfg, stack, nil)
	require.NotNil(t, server.limits)
}
