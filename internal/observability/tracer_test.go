package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// =============================================================================
// Tracer Tests
// =============================================================================

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

// =============================================================================
// Span Helper Tests
// =============================================================================

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestSpanHelpers_Record(t *testing.T) {
	recorder := useRecorder(t)
	ctx := context.Background()

	buildCtx, build := StartBuildSpan(ctx, 3)
	assert.NotEmpty(t, ExtractTraceID(buildCtx))

	_, resolve := StartResolveSpan(buildCtx, "npm:preact", "")
	EndSpan(resolve, errors.New("unresolvable"))

	_, fetch := StartFetchSpan(buildCtx, "https://esm.sh/preact/package.json")
	EndSpan(fetch, nil)
	EndSpan(build, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, span := range spans {
		byName[span.Name()] = span
	}
	require.Contains(t, byName, "bundle.build")
	require.Contains(t, byName, "resolve")
	require.Contains(t, byName, "fetch")

	assert.Equal(t, codes.Error, byName["resolve"].Status().Code)
	assert.Equal(t, "unresolvable", byName["resolve"].Status().Description)
	assert.Equal(t, codes.Unset, byName["fetch"].Status().Code)
	assert.Equal(t, byName["bundle.build"].SpanContext().SpanID(), byName["fetch"].Parent().SpanID())
}

func TestExtractTraceID(t *testing.T) {
	t.Run("returns empty for context without span", func(t *testing.T) {
		assert.Empty(t, ExtractTraceID(context.Background()))
	})

	t.Run("returns empty for noop span", func(t *testing.T) {
		ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "test")
		defer span.End()

		assert.Empty(t, ExtractTraceID(ctx))
	})
}
