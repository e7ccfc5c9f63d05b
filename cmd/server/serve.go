package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rag-gateway/internal/app/handlers"
	"rag-gateway/internal/app/server"
	"rag-gateway/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	Long: `启动 HTTP 服务，对外提供 POST /v1/query 等接口。

Examples:
  # 使用默认配置启动
  rag-gateway serve

  # 指定配置文件
  rag-gateway serve --config configs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	config, log, err := loadConfig(ctx)
	if err != nil {
		log.ErrorContext(ctx, "应用程序初始化失败", "error", err)
		return err
	}

	app, err := initializeApplication(ctx, config, log, true)
	if err != nil {
		log.ErrorContext(ctx, "应用程序初始化失败", "error", err)
		return err
	}

	h := server.Handlers{
		Query:  handlers.NewQueryHandler(app.gateway, log),
		Cache:  handlers.NewCacheHandler(app.cache, log),
		Health: handlers.NewHealthHandler(version),
	}
	if app.metrics != nil {
		h.Metrics = app.metrics.HTTPHandler()
		h.MetricsEndpoint = config.Eino.Callbacks.Metrics.Endpoint
	}

	httpServer := server.NewServer(&config.Server, h, log)
	return runApplication(ctx, httpServer, app, log)
}

// runApplication 运行应用程序，监听停止信号。
// 此函数会阻塞直到收到停止信号、服务器错误或上下文取消。
func runApplication(ctx context.Context, httpServer *server.Server, app *application, log logger.Logger) error {
	errChan := make(chan error, 1)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	if err := httpServer.Start(ctx, errChan); err != nil {
		log.ErrorContext(ctx, "HTTP服务器启动失败", "error", err)
		_ = app.close(ctx)
		return err
	}

	select {
	case err := <-errChan:
		log.ErrorContext(ctx, "服务器运行错误", "error", err)
		_ = gracefulShutdown(ctx, httpServer, app, log)
		return err

	case sig := <-signalChan:
		log.InfoContext(ctx, "收到停止信号，开始优雅关闭", "signal", sig.String())
		return gracefulShutdown(ctx, httpServer, app, log)

	case <-ctx.Done():
		log.InfoContext(ctx, "上下文取消，开始优雅关闭")
		return gracefulShutdown(ctx, httpServer, app, log)
	}
}

// gracefulShutdown 先停止接收请求，再等待在途运行结束并释放连接
func gracefulShutdown(ctx context.Context, httpServer *server.Server, app *application, log logger.Logger) error {
	log.InfoContext(ctx, "开始执行优雅关闭流程")

	timeout := app.config.Server.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "HTTP服务器关闭失败", "error", err)
		_ = app.close(shutdownCtx)
		return fmt.Errorf("HTTP服务器关闭失败: %w", err)
	}

	if err := app.close(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "资源释放失败", "error", err)
		return fmt.Errorf("资源释放失败: %w", err)
	}

	log.InfoContext(ctx, "优雅关闭完成")
	return nil
}
