package callbacks

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rag-gateway/internal/eino/config"
	"rag-gateway/pkg/logger"
)

const tracerName = "rag-gateway/internal/eino/callbacks"

// TracingHandler 为每个节点创建一个 OpenTelemetry span
type TracingHandler struct {
	cfg    *config.TracingCallbackConfig
	tracer trace.Tracer
	logger logger.Logger
}

// NewTracingHandler 创建链路追踪回调处理器，tp 为空时使用全局 TracerProvider
func NewTracingHandler(cfg *config.TracingCallbackConfig, tp trace.TracerProvider, log logger.Logger) *TracingHandler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingHandler{
		cfg:    cfg,
		tracer: tp.Tracer(tracerName),
		logger: log,
	}
}

// OnStart 开始节点 span
func (h *TracingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled || info == nil {
		return ctx
	}

	name := info.Name
	if name == "" {
		name = string(info.Component)
	}

	ctx, span := h.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("eino.component", string(info.Component)),
			attribute.String("eino.type", info.Type),
			attribute.String("service.name", h.cfg.ServiceName),
		),
	)

	h.logger.DebugContext(ctx, "开始跨度",
		"trace_id", span.SpanContext().TraceID().String(),
		"span_id", span.SpanContext().SpanID().String(),
	)
	return ctx
}

// OnEnd 结束节点 span
func (h *TracingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Ok, "")
	span.End()
	return ctx
}

// OnError 记录错误并结束 span
func (h *TracingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (h *TracingHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput 流式输出结束时调用
func (h *TracingHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return h.OnEnd(ctx, info, nil)
}

// ExtractTraceID 从上下文提取当前 Trace ID，没有 span 时返回空串
func ExtractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
