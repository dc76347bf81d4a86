package middleware

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/importsize/importsize/internal/observability"
)

const traceCtxKey = "trace_ctx"

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// Enabled controls whether tracing is active
	Enabled bool

	// SkipPaths are paths that should not be traced (e.g., /health, /metrics)
	SkipPaths []string
}

// DefaultTracingConfig returns sensible defaults
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// TracingMiddleware returns a Fiber middleware that creates spans for HTTP requests
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("importsize-http")

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipPaths[path] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		spanName := c.Route().Path
		if spanName == "" {
			spanName = path
		}
		spanName = fmt.Sprintf("%s %s", c.Method(), spanName)

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				semconv.HTTPURL(c.OriginalURL()),
				semconv.HTTPScheme(c.Protocol()),
				semconv.NetHostName(c.Hostname()),
				attribute.String("http.user_agent", c.Get("User-Agent")),
				attribute.String("http.request_id", c.Get("X-Request-ID")),
			),
		)
		defer span.End()

		c.Locals(traceCtxKey, ctx)
		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		statusCode := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPStatusCode(statusCode),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)

		if statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// TraceContext returns the request's trace context, or the user context when
// the request is not traced
func TraceContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(traceCtxKey).(context.Context); ok {
		return ctx
	}
	return c.UserContext()
}

// GetTraceID returns the trace ID from the Fiber context
func GetTraceID(c *fiber.Ctx) string {
	return observability.ExtractTraceID(TraceContext(c))
}
