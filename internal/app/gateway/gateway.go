// Package gateway 是查询请求的入口：校验、读缓存、提交编排并等待终态。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
	"rag-gateway/pkg/logger"
)

const (
	defaultWaitTimeout  = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

// CacheReader 网关读缓存所需的能力
type CacheReader interface {
	Get(ctx context.Context, query string) (*models.CacheEntry, bool)
}

// Recorder 网关上报的指标
type Recorder interface {
	RecordCacheLookup(hit bool)
	RecordRun(state models.RunState)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheLookup(bool) {}

func (nopRecorder) RecordRun(models.RunState) {}

// Options 网关参数
type Options struct {
	MaxQueryLength int
	WaitTimeout    time.Duration
	PollInterval   time.Duration
}

// Option 网关可选项
type Option func(*Gateway)

// WithRecorder 设置指标上报
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway 查询入口
type Gateway struct {
	cache   CacheReader
	runtime services.Runtime
	opts    Options
	metrics Recorder
	logger  logger.Logger
	now     func() time.Time
}

// New 创建网关
func New(cache CacheReader, runtime services.Runtime, opts Options, log logger.Logger, options ...Option) *Gateway {
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = models.MaxQueryLength
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	g := &Gateway{
		cache:   cache,
		runtime: runtime,
		opts:    opts,
		metrics: nopRecorder{},
		logger:  log,
		now:     time.Now,
	}
	for _, o := range options {
		o(g)
	}
	return g
}

// Ask 处理一次查询。
// 命中缓存时直接返回且不再审核；未命中时提交编排并在等待上限内轮询终态。
// 返回的错误均为 *models.PipelineError。
func (g *Gateway) Ask(ctx context.Context, raw *string, requestID string) (*models.PipelineResult, error) {
	receivedAt := g.now()
	ctx = logger.InjectFields(ctx, logger.Fields{"request_id": requestID})

	query, err := models.ValidateQuery(raw, g.opts.MaxQueryLength)
	if err != nil {
		g.logger.InfoContext(ctx, "查询校验失败", "error", err)
		return nil, err
	}

	if entry, ok := g.cache.Get(ctx, query); ok {
		g.metrics.RecordCacheLookup(true)
		g.logger.InfoContext(ctx, "命中缓存", "query_hash", entry.Key)
		return entry.ToResult(g.now().Sub(receivedAt).Milliseconds()), nil
	}
	g.metrics.RecordCacheLookup(false)

	handle, err := g.runtime.Submit(ctx, models.NewRunEvent(query, requestID, receivedAt))
	if err != nil {
		g.logger.ErrorContext(ctx, "编排启动失败", "error", err)
		if models.KindOf(err) == models.KindOrchestrationStart {
			return nil, err
		}
		return nil, models.NewPipelineError(models.KindOrchestrationStart, "", "failed to start run", err)
	}

	ctx = logger.InjectFields(ctx, logger.Fields{"run_id": handle.RunID})
	status, err := g.wait(ctx, handle)
	if err != nil {
		return nil, err
	}

	g.metrics.RecordRun(status.State)
	return g.resultOf(ctx, status)
}

// GetRun 查询某次运行的当前状态
func (g *Gateway) GetRun(ctx context.Context, runID string) (models.RunStatus, error) {
	return g.runtime.Poll(ctx, models.RunHandle{RunID: runID})
}

// wait 轮询直到终态、等待上限或调用方取消。
// 每次 Poll 都受等待上限约束，超时只代表网关不再等待，运行本身会继续。
func (g *Gateway) wait(ctx context.Context, handle models.RunHandle) (models.RunStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.opts.WaitTimeout)
	defer cancel()
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := g.runtime.Poll(waitCtx, handle)
		switch {
		case err == nil && status.Terminal():
			return status, nil
		case err != nil && waitCtx.Err() == nil:
			g.logger.ErrorContext(ctx, "查询运行状态失败", "error", err)
			return models.RunStatus{}, models.NewPipelineError(models.KindInternal, "", "failed to poll run", err)
		}

		select {
		case <-waitCtx.Done():
			return models.RunStatus{}, g.stopWaiting(ctx)
		case <-ticker.C:
		}
	}
}

// stopWaiting 区分调用方取消与等待上限，两者都归为超时
func (g *Gateway) stopWaiting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		g.logger.WarnContext(ctx, "调用方取消等待", "error", err)
		return models.NewPipelineError(models.KindTimeout, "", "caller stopped waiting", err)
	}
	g.logger.WarnContext(ctx, "等待运行结果超时", "wait_timeout", g.opts.WaitTimeout.String())
	return models.NewPipelineError(models.KindTimeout, "", fmt.Sprintf("no terminal state within %s", g.opts.WaitTimeout), context.DeadlineExceeded)
}

// resultOf 将终态映射为结果或分类错误
func (g *Gateway) resultOf(ctx context.Context, status models.RunStatus) (*models.PipelineResult, error) {
	switch status.State {
	case models.StateSucceeded:
		if status.Result == nil {
			return nil, models.NewPipelineError(models.KindInternal, "", "run succeeded without result", nil)
		}
		result := *status.Result
		result.Cached = false
		g.logger.InfoContext(ctx, "运行成功", "execution_time_ms", result.ExecutionTimeMs)
		return &result, nil

	case models.StateBlocked:
		reason, stage := "", models.RunState("")
		if status.Error != nil {
			reason, stage = status.Error.Cause, status.Error.Stage
		}
		g.logger.InfoContext(ctx, "内容被拦截", "stage", stage, "reason", reason)
		return nil, models.NewBlockedError(stage, reason)

	case models.StateFailed:
		err := status.Error.Err()
		if err == nil {
			err = errors.New("run failed without error detail")
		}
		g.logger.ErrorContext(ctx, "运行失败", "error", err)
		if kind := models.KindOf(err); kind == models.KindStageBackend || kind == models.KindInternal {
			return nil, err
		}
		return nil, models.NewPipelineError(models.KindStageBackend, stageOf(status), "run failed", err)

	default:
		// TIMED_OUT 与 ABORTED 属于运行时层面的失败，与网关等待超时区分
		g.logger.ErrorContext(ctx, "运行异常结束", "state", status.State)
		return nil, models.NewPipelineError(models.KindStageBackend, stageOf(status), fmt.Sprintf("run ended with state %s", status.State), status.Error.Err())
	}
}

func stageOf(status models.RunStatus) models.RunState {
	if status.Error != nil {
		return status.Error.Stage
	}
	return ""
}
