package callbacks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/eino/config"
	"rag-gateway/pkg/logger"
)

var retrieveInfo = &callbacks.RunInfo{Name: "retrieve", Type: "Lambda", Component: "Lambda"}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(logger.Config{Level: slog.LevelDebug}, &buf)
	h := NewLoggingHandler(log, &config.LoggingCallbackConfig{Enabled: true})

	ctx := h.OnStart(context.Background(), retrieveInfo, nil)
	h.OnEnd(ctx, retrieveInfo, nil)
	h.OnError(ctx, retrieveInfo, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "节点开始执行")
	assert.Contains(t, out, "节点执行完成")
	assert.Contains(t, out, "error=boom")
	assert.Equal(t, 3, strings.Count(out, "node=retrieve"))
}

func TestLoggingHandler_Disabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHandler(logger.NewWithWriter(logger.Config{Level: slog.LevelDebug}, &buf), &config.LoggingCallbackConfig{})

	ctx := context.Background()
	assert.Equal(t, ctx, h.OnStart(ctx, retrieveInfo, nil))
	assert.Zero(t, buf.Len())
}

func TestMetricsHandler(t *testing.T) {
	h := NewMetricsHandler(&config.MetricsCallbackConfig{Enabled: true, Namespace: "test"})

	ctx := h.OnStart(context.Background(), retrieveInfo, nil)
	h.OnEnd(ctx, retrieveInfo, nil)
	ctx = h.OnStart(context.Background(), retrieveInfo, nil)
	h.OnError(ctx, retrieveInfo, errors.New("boom"))

	h.RecordRun(models.StateSucceeded)
	h.RecordRun(models.StateBlocked)
	h.RecordRun(models.StateSucceeded)
	h.RecordCacheLookup(true)
	h.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.nodeCalls.WithLabelValues("retrieve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.nodeCalls.WithLabelValues("retrieve", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.runs.WithLabelValues("SUCCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.cacheReads.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(h.nodeLatency))

	expected := `
# HELP test_runs_total Pipeline runs by terminal state.
# TYPE test_runs_total counter
test_runs_total{state="BLOCKED"} 1
test_runs_total{state="SUCCEEDED"} 2
`
	require.NoError(t, testutil.GatherAndCompare(h.Registry(), strings.NewReader(expected), "test_runs_total"))
}

func TestMetricsHandler_NilSafe(t *testing.T) {
	var h *MetricsHandler
	h.RecordRun(models.StateFailed)
	h.RecordCacheLookup(true)
}

func TestTracingHandler(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := NewTracingHandler(&config.TracingCallbackConfig{Enabled: true, ServiceName: "rag-gateway"}, tp, logger.Nop())

	ctx := h.OnStart(context.Background(), retrieveInfo, nil)
	assert.NotEmpty(t, ExtractTraceID(ctx))
	h.OnEnd(ctx, retrieveInfo, nil)

	genInfo := &callbacks.RunInfo{Name: "generate", Type: "Lambda", Component: "Lambda"}
	ctx = h.OnStart(context.Background(), genInfo, nil)
	h.OnError(ctx, genInfo, errors.New("model timeout"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "retrieve", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "generate", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "model timeout", spans[1].Status().Description)
}

func TestFactory_CreateHandlers(t *testing.T) {
	cfg := config.DefaultEinoConfig().Callbacks
	f := NewFactory(&cfg, logger.Nop(), nil)

	handlers := f.CreateHandlers()
	assert.Len(t, handlers, 2)
	require.NotNil(t, f.Metrics())

	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = true
	f = NewFactory(&cfg, logger.Nop(), nil)
	assert.Nil(t, f.Metrics())
	assert.Len(t, f.CreateHandlers(), 2)
}
