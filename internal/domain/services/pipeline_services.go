package services

import (
	"context"

	"rag-gateway/internal/domain/models"
)

// GuardrailBackend 内容审核后端
type GuardrailBackend interface {
	// Apply 对文本执行审核策略。
	// 返回 error 表示无法得到结论，与策略拦截是两种不同结果。
	Apply(ctx context.Context, text string, direction models.Direction) (*models.GuardrailOutcome, error)
}

// RunExecutor 驱动一次完整的编排运行，总是返回终态
type RunExecutor interface {
	Execute(ctx context.Context, event models.RunEvent) models.RunStatus
}

// Runtime 编排运行时：提交运行并轮询其状态
type Runtime interface {
	// Submit 启动一次运行。返回错误表示运行时本身无法启动。
	Submit(ctx context.Context, event models.RunEvent) (models.RunHandle, error)

	// Poll 查询运行当前状态，未结束时 State 为 RUNNING
	Poll(ctx context.Context, handle models.RunHandle) (models.RunStatus, error)
}

// RunNotification 运行到达终态时发布的事件
type RunNotification struct {
	RunID           string           `json:"run_id"`
	RequestID       string           `json:"request_id"`
	State           models.RunState  `json:"state"`
	ErrorKind       models.ErrorKind `json:"error_kind,omitempty"`
	Stage           models.RunState  `json:"stage,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// RunEventPublisher 运行事件发布接口，发布失败不影响请求结果
type RunEventPublisher interface {
	Publish(ctx context.Context, n RunNotification) error
	Close() error
}

// NopPublisher 不做任何事的发布器
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RunNotification) error { return nil }

func (NopPublisher) Close() error { return nil }
