package callbacks

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/eino/config"
)

// MetricsHandler 将节点调用和请求结果导出为 Prometheus 指标
type MetricsHandler struct {
	cfg      *config.MetricsCallbackConfig
	registry *prometheus.Registry

	nodeCalls   *prometheus.CounterVec
	nodeLatency *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	cacheReads  *prometheus.CounterVec
}

// NewMetricsHandler 创建指标回调处理器，指标注册在独立的 Registry 上
func NewMetricsHandler(cfg *config.MetricsCallbackConfig) *MetricsHandler {
	ns := cfg.Namespace
	if ns == "" {
		ns = "rag_gateway"
	}

	h := &MetricsHandler{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		nodeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "node_calls_total",
			Help:      "Pipeline node invocations by node and status.",
		}, []string{"node", "status"}),
		nodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "node_duration_seconds",
			Help:      "Pipeline node latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"node"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal state.",
		}, []string{"state"}),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_lookups_total",
			Help:      "Answer cache lookups by result.",
		}, []string{"result"}),
	}

	h.registry.MustRegister(h.nodeCalls, h.nodeLatency, h.runs, h.cacheReads)
	return h
}

// Registry 返回指标注册表
func (h *MetricsHandler) Registry() *prometheus.Registry {
	return h.registry
}

// HTTPHandler 返回 /metrics 使用的处理器
func (h *MetricsHandler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// RecordRun 记录一次运行的终态
func (h *MetricsHandler) RecordRun(state models.RunState) {
	if h == nil || !h.cfg.Enabled {
		return
	}
	h.runs.WithLabelValues(string(state)).Inc()
}

// RecordCacheLookup 记录一次缓存读取结果
func (h *MetricsHandler) RecordCacheLookup(hit bool) {
	if h == nil || !h.cfg.Enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	h.cacheReads.WithLabelValues(result).Inc()
}

// OnStart 节点开始执行时记录开始时间
func (h *MetricsHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}
	return context.WithValue(ctx, metricsStartTimeKey, time.Now())
}

// OnEnd 节点执行完成时记录调用次数和耗时
func (h *MetricsHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	h.observe(ctx, info, "ok")
	return ctx
}

// OnError 节点执行出错时记录
func (h *MetricsHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	h.observe(ctx, info, "error")
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (h *MetricsHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput 流式输出结束时调用
func (h *MetricsHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return h.OnEnd(ctx, info, nil)
}

func (h *MetricsHandler) observe(ctx context.Context, info *callbacks.RunInfo, status string) {
	if !h.cfg.Enabled || info == nil {
		return
	}

	h.nodeCalls.WithLabelValues(info.Name, status).Inc()

	if startTime, ok := ctx.Value(metricsStartTimeKey).(time.Time); ok {
		h.nodeLatency.WithLabelValues(info.Name).Observe(time.Since(startTime).Seconds())
	}
}
