// Package temporal 将一次查询运行托管为 Temporal 工作流。
// 工作流只包含一个活动，活动内部驱动完整的状态机。
package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
)

const defaultActivityTimeout = 2 * time.Minute

// WorkflowInput 工作流输入
type WorkflowInput struct {
	Event           models.RunEvent `json:"event"`
	ActivityTimeout time.Duration   `json:"activity_timeout"`
}

// Activities 工作流使用的活动集合
type Activities struct {
	Executor services.RunExecutor
}

// ExecuteRun 执行一次完整的状态机运行。
// 阶段失败体现在返回的 RunStatus 中，不作为活动错误返回。
func (a *Activities) ExecuteRun(ctx context.Context, event models.RunEvent) (models.RunStatus, error) {
	activity.GetLogger(ctx).Info("开始执行查询运行", "run_id", event.RunID, "request_id", event.RequestID)

	status := a.Executor.Execute(ctx, event)
	status.RunID = event.RunID
	return status, nil
}

// RAGQueryWorkflow 查询运行工作流。
// 活动不重试：重复执行会产生重复的模型调用。
func RAGQueryWorkflow(ctx workflow.Context, input WorkflowInput) (models.RunStatus, error) {
	logger := workflow.GetLogger(ctx)

	timeout := input.ActivityTimeout
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var a *Activities
	var status models.RunStatus
	err := workflow.ExecuteActivity(ctx, a.ExecuteRun, input.Event).Get(ctx, &status)
	if err != nil {
		if temporal.IsTimeoutError(err) {
			logger.Warn("查询运行超时", "run_id", input.Event.RunID)
			return models.RunStatus{
				RunID: input.Event.RunID,
				State: models.StateTimedOut,
				Error: &models.RunError{Kind: models.KindTimeout, Cause: "run exceeded its time limit"},
			}, nil
		}
		logger.Error("查询运行活动失败", "run_id", input.Event.RunID, "error", err)
		return models.RunStatus{}, err
	}

	logger.Info("查询运行结束", "run_id", input.Event.RunID, "state", status.State)
	return status, nil
}
