package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"

	temporalrt "rag-gateway/internal/infrastructure/runtime/temporal"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动 Temporal worker 执行查询流程",
	Long: `启动 Temporal worker，从任务队列领取查询工作流并在本进程内执行流水线。
要求 runtime.provider 为 temporal。`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if config.Runtime.Provider != "temporal" {
		return fmt.Errorf("worker requires runtime.provider=temporal, got %q", config.Runtime.Provider)
	}

	app, err := initializeApplication(ctx, config, log, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.close(context.Background()) }()

	c, err := app.dialTemporal(ctx)
	if err != nil {
		return err
	}

	w := temporalrt.NewWorker(c, config.Runtime.Temporal.TaskQueue, app.graph)
	log.InfoContext(ctx, "starting temporal worker", "task_queue", config.Runtime.Temporal.TaskQueue)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker exited with error: %w", err)
	}
	log.InfoContext(ctx, "worker stopped")
	return nil
}
