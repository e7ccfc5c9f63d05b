package temporal

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"rag-gateway/internal/domain/services"
)

// NewWorker 创建注册了查询工作流和活动的 worker，调用方负责 Run/Stop
func NewWorker(c client.Client, taskQueue string, executor services.RunExecutor) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(RAGQueryWorkflow)
	w.RegisterActivity(&Activities{Executor: executor})

	return w
}
