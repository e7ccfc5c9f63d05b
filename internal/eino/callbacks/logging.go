package callbacks

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"

	"rag-gateway/internal/eino/config"
	"rag-gateway/pkg/logger"
)

// LoggingHandler 记录流程各节点的开始、结束和错误。
// 节点名称会注入上下文，节点内部的日志自动携带。
type LoggingHandler struct {
	logger logger.Logger
	cfg    *config.LoggingCallbackConfig
}

// NewLoggingHandler 创建日志回调处理器
func NewLoggingHandler(log logger.Logger, cfg *config.LoggingCallbackConfig) *LoggingHandler {
	return &LoggingHandler{
		logger: log,
		cfg:    cfg,
	}
}

// OnStart 记录节点开始，并把开始时间写入上下文
func (h *LoggingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled || info == nil {
		return ctx
	}

	ctx = context.WithValue(ctx, startTimeKey, time.Now())
	ctx = logger.InjectFields(ctx, logger.Fields{"node": info.Name})

	h.logger.DebugContext(ctx, "节点开始执行", "component", info.Component, "type", info.Type)
	return ctx
}

// OnEnd 记录节点耗时
func (h *LoggingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !h.cfg.Enabled || info == nil {
		return ctx
	}

	h.logger.InfoContext(ctx, "节点执行完成", "duration_ms", elapsedMs(ctx))
	return ctx
}

// OnError 记录节点错误
func (h *LoggingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if !h.cfg.Enabled || info == nil {
		return ctx
	}

	h.logger.ErrorContext(ctx, "节点执行出错",
		"duration_ms", elapsedMs(ctx),
		"error", err,
	)
	return ctx
}

// OnStartWithStreamInput 流程中没有流式节点，与 OnStart 相同处理
func (h *LoggingHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput 流程中没有流式节点，与 OnEnd 相同处理
func (h *LoggingHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return h.OnEnd(ctx, info, nil)
}

func elapsedMs(ctx context.Context) int64 {
	startTime, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(startTime).Milliseconds()
}

// contextKey 上下文键类型，防止与其他包冲突
type contextKey string

const (
	startTimeKey        contextKey = "callback_start_time"
	metricsStartTimeKey contextKey = "metrics_start_time"
)
