package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rag-gateway/internal/eino/config"
)

func TestNewTracerProvider_WithoutEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), &config.TracingCallbackConfig{
		Enabled:    true,
		SampleRate: 1.0,
	}, "test")
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	recorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(recorder)

	_, span := tp.Tracer("test").Start(context.Background(), "retrieve")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "retrieve", spans[0].Name())

	var name string
	for _, kv := range spans[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			name = kv.Value.AsString()
		}
	}
	assert.Equal(t, "rag-gateway", name)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate    float64
		sampled bool
	}{
		{1.0, true},
		{2.0, true},
		{0, false},
		{-1, false},
	}

	for _, tt := range tests {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler(tt.rate)))
		_, span := tp.Tracer("test").Start(context.Background(), "node")
		assert.Equal(t, tt.sampled, span.SpanContext().IsSampled(), "rate=%v", tt.rate)
		span.End()
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4317", stripScheme("collector:4317"))
}
