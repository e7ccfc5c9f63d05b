// Package local 提供进程内的编排运行时。
// 每次提交启动一个 goroutine 执行状态机，终态记录保留一段时间供轮询。
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
	"rag-gateway/pkg/logger"
)

// Name 运行时名称，写入 RunHandle.Runtime
const Name = "local"

const (
	defaultRunTimeout = 5 * time.Minute
	defaultRetention  = 10 * time.Minute
)

// ErrClosed 运行时已关闭
var ErrClosed = errors.New("local runtime is shut down")

// Options 本地运行时参数
type Options struct {
	// RunTimeout 单次运行的时间上限，与网关的等待上限相互独立
	RunTimeout time.Duration
	// Retention 终态记录的保留时间
	Retention time.Duration
	// SweepInterval 清理过期记录的间隔，默认为 Retention 的一半
	SweepInterval time.Duration
}

type runRecord struct {
	status     models.RunStatus
	finishedAt time.Time
}

// Runtime 进程内编排运行时
type Runtime struct {
	executor services.RunExecutor
	opts     Options
	logger   logger.Logger
	now      func() time.Time

	mu     sync.RWMutex
	runs   map[string]*runRecord
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

// New 创建本地运行时并启动后台清理
func New(executor services.RunExecutor, opts Options, log logger.Logger) *Runtime {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.Retention / 2
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		executor: executor,
		opts:     opts,
		logger:   log,
		now:      time.Now,
		runs:     make(map[string]*runRecord),
		baseCtx:  baseCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go r.sweepLoop()
	return r
}

// Submit 启动一次运行并立即返回句柄。
// 运行不继承调用方的取消信号，网关放弃等待后运行仍会继续到终态。
func (r *Runtime) Submit(ctx context.Context, event models.RunEvent) (models.RunHandle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return models.RunHandle{}, models.NewPipelineError(models.KindOrchestrationStart, "", "runtime unavailable", ErrClosed)
	}

	runID := uuid.New().String()
	r.runs[runID] = &runRecord{status: models.RunStatus{RunID: runID, State: models.StateRunning}}
	r.wg.Add(1)
	r.mu.Unlock()

	event = event.WithRunID(runID)
	runCtx := logger.InjectFields(r.baseCtx, logger.FieldsFrom(ctx))
	go r.run(runCtx, event)

	r.logger.DebugContext(ctx, "运行已提交", "run_id", runID, "runtime", Name)

	return models.RunHandle{
		RunID:     runID,
		RequestID: event.RequestID,
		Runtime:   Name,
		StartedAt: r.now(),
	}, nil
}

// Poll 返回运行的当前状态，未知或已清理的运行返回 not_found
func (r *Runtime) Poll(ctx context.Context, handle models.RunHandle) (models.RunStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.RunStatus{}, err
	}

	r.mu.RLock()
	rec, ok := r.runs[handle.RunID]
	r.mu.RUnlock()
	if !ok {
		return models.RunStatus{}, models.NewPipelineError(models.KindNotFound, "", fmt.Sprintf("run %s not found", handle.RunID), nil)
	}
	return rec.status, nil
}

// Shutdown 停止接收新运行，取消在途运行并等待其结束
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.cancel()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待在途运行结束超时: %w", ctx.Err())
	}
}

func (r *Runtime) run(ctx context.Context, event models.RunEvent) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
	defer cancel()

	status := r.executor.Execute(ctx, event)
	status.RunID = event.RunID

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && status.State != models.StateSucceeded:
		status = models.RunStatus{
			RunID: event.RunID,
			State: models.StateTimedOut,
			Error: &models.RunError{Kind: models.KindTimeout, Stage: stageOf(status), Cause: "run exceeded its time limit"},
		}
	case errors.Is(ctx.Err(), context.Canceled) && status.State != models.StateSucceeded:
		status = models.RunStatus{
			RunID: event.RunID,
			State: models.StateAborted,
			Error: &models.RunError{Kind: models.KindInternal, Stage: stageOf(status), Cause: "run aborted by shutdown"},
		}
	}

	r.mu.Lock()
	r.runs[event.RunID] = &runRecord{status: status, finishedAt: r.now()}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "运行结束", "run_id", event.RunID, "state", status.State)
}

func stageOf(status models.RunStatus) models.RunState {
	if status.Error != nil {
		return status.Error.Stage
	}
	return ""
}

func (r *Runtime) sweepLoop() {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				r.logger.Debug("已清理过期运行记录", "count", n)
			}
		}
	}
}

// sweep 删除超过保留期的终态记录，返回删除数量
func (r *Runtime) sweep() int {
	cutoff := r.now().Add(-r.opts.Retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.runs {
		if rec.status.Terminal() && !rec.finishedAt.After(cutoff) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}
