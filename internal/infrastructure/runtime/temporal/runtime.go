package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"

	"rag-gateway/internal/domain/models"
	"rag-gateway/pkg/logger"
)

// Name 运行时名称
const Name = "temporal"

// WorkflowIDPrefix 工作流 ID 前缀，运行 ID 即工作流 ID
const WorkflowIDPrefix = "rag-"

// WorkflowClient Runtime 依赖的 Temporal 客户端能力，client.Client 满足该接口
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun
}

// Options Temporal 运行时参数
type Options struct {
	TaskQueue       string
	RunTimeout      time.Duration
	ActivityTimeout time.Duration
}

// Runtime 基于 Temporal 的编排运行时
type Runtime struct {
	client WorkflowClient
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

// NewRuntime 创建 Temporal 运行时
func NewRuntime(c WorkflowClient, opts Options, log logger.Logger) *Runtime {
	return &Runtime{
		client: c,
		opts:   opts,
		logger: log,
		now:    time.Now,
	}
}

// Submit 启动工作流
func (r *Runtime) Submit(ctx context.Context, event models.RunEvent) (models.RunHandle, error) {
	workflowID := WorkflowIDPrefix + uuid.New().String()
	event = event.WithRunID(workflowID)

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                r.opts.TaskQueue,
		WorkflowExecutionTimeout: r.opts.RunTimeout,
	}

	input := WorkflowInput{Event: event, ActivityTimeout: r.opts.ActivityTimeout}
	if _, err := r.client.ExecuteWorkflow(ctx, options, RAGQueryWorkflow, input); err != nil {
		r.logger.ErrorContext(ctx, "启动工作流失败", "workflow_id", workflowID, "error", err)
		return models.RunHandle{}, models.NewPipelineError(models.KindOrchestrationStart, "", "failed to start workflow", err)
	}

	r.logger.DebugContext(ctx, "工作流已启动", "workflow_id", workflowID, "task_queue", r.opts.TaskQueue)

	return models.RunHandle{
		RunID:     workflowID,
		RequestID: event.RequestID,
		Runtime:   Name,
		StartedAt: r.now(),
	}, nil
}

// Poll 查询工作流状态，完成时取回运行结果
func (r *Runtime) Poll(ctx context.Context, handle models.RunHandle) (models.RunStatus, error) {
	resp, err := r.client.DescribeWorkflowExecution(ctx, handle.RunID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return models.RunStatus{}, models.NewPipelineError(models.KindNotFound, "", fmt.Sprintf("run %s not found", handle.RunID), err)
		}
		return models.RunStatus{}, fmt.Errorf("查询工作流状态失败: %w", err)
	}

	switch resp.GetWorkflowExecutionInfo().GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var status models.RunStatus
		if err := r.client.GetWorkflow(ctx, handle.RunID, "").Get(ctx, &status); err != nil {
			return models.RunStatus{}, fmt.Errorf("获取工作流结果失败: %w", err)
		}
		status.RunID = handle.RunID
		return status, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		cause := "workflow failed"
		if err := r.client.GetWorkflow(ctx, handle.RunID, "").Get(ctx, nil); err != nil {
			cause = err.Error()
		}
		// 工作流层面的失败与阶段后端失败一样对外报告为 workflow_failed
		return terminal(handle.RunID, models.StateFailed, models.KindStageBackend, cause), nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return terminal(handle.RunID, models.StateTimedOut, models.KindTimeout, "run exceeded its time limit"), nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return terminal(handle.RunID, models.StateAborted, models.KindInternal, "run was canceled or terminated"), nil

	default:
		return models.RunStatus{RunID: handle.RunID, State: models.StateRunning}, nil
	}
}

func terminal(runID string, state models.RunState, kind models.ErrorKind, cause string) models.RunStatus {
	return models.RunStatus{
		RunID: runID,
		State: state,
		Error: &models.RunError{Kind: kind, Cause: cause},
	}
}
