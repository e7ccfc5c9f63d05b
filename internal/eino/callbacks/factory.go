// Package callbacks 提供 Eino Callback 处理器实现
package callbacks

import (
	"github.com/cloudwego/eino/callbacks"
	"go.opentelemetry.io/otel/trace"

	"rag-gateway/internal/eino/config"
	"rag-gateway/pkg/logger"
)

// Factory Callback 工厂
type Factory struct {
	cfg     *config.CallbacksConfig
	logger  logger.Logger
	tp      trace.TracerProvider
	metrics *MetricsHandler
}

// NewFactory 创建 Callback 工厂，tp 可为空
func NewFactory(cfg *config.CallbacksConfig, log logger.Logger, tp trace.TracerProvider) *Factory {
	f := &Factory{
		cfg:    cfg,
		logger: log,
		tp:     tp,
	}
	if cfg.Metrics.Enabled {
		f.metrics = NewMetricsHandler(&cfg.Metrics)
	}
	return f
}

// CreateHandlers 创建所有启用的 Callback 处理器
func (f *Factory) CreateHandlers() []callbacks.Handler {
	handlers := make([]callbacks.Handler, 0, 3)

	if f.cfg.Logging.Enabled {
		handlers = append(handlers, NewLoggingHandler(f.logger, &f.cfg.Logging))
	}

	if f.metrics != nil {
		handlers = append(handlers, f.metrics)
	}

	if f.cfg.Tracing.Enabled {
		handlers = append(handlers, NewTracingHandler(&f.cfg.Tracing, f.tp, f.logger))
	}

	return handlers
}

// Metrics 返回共享的指标处理器，未启用时为 nil
func (f *Factory) Metrics() *MetricsHandler {
	return f.metrics
}
