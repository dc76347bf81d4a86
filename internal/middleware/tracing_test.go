package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.True(t, cfg.Enabled)
	assert.Contains(t, cfg.SkipPaths, "/health")
	assert.Contains(t, cfg.SkipPaths, "/metrics")
}

func TestTracingMiddleware_Disabled(t *testing.T) {
	recorder := withRecorder(t)
	app := fiber.New()
	app.Use(TracingMiddleware(TracingConfig{Enabled: false}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, recorder.Ended())
}

func TestTracingMiddleware_RecordsSpans(t *testing.T) {
	recorder := withRecorder(t)
	app := fiber.New()
	app.Use(TracingMiddleware(DefaultTracingConfig()))

	var handlerCtx context.Context
	app.Get("/api/v1/bundle", func(c *fiber.Ctx) error {
		handlerCtx = TraceContext(c)
		return c.SendString(GetTraceID(c))
	})
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "bad") })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/bundle", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.NotEmpty(t, string(body))
	assert.Equal(t, string(body), resp.Header.Get("X-Trace-ID"))
	require.NotNil(t, handlerCtx)

	_, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	_, err = app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2, "health checks are not traced")
	assert.Equal(t, "GET /api/v1/bundle", spans[0].Name())
	assert.Equal(t, "GET /fail", spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}

func TestTraceContext_Untraced(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.NotNil(t, TraceContext(c))
		assert.Empty(t, GetTraceID(c))
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}
