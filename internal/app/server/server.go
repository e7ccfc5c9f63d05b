package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-gateway/configs"
	"rag-gateway/pkg/logger"
)

// Server HTTP 服务器：装配路由，监听端口并负责优雅关闭
type Server struct {
	config     *configs.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     logger.Logger
}

// NewServer 创建服务器并注册全部路由
func NewServer(config *configs.ServerConfig, h Handlers, log logger.Logger) *Server {
	if config.Host == "0.0.0.0" || config.Host == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	SetupRoutes(engine, h, log)

	return &Server{
		config: config,
		engine: engine,
		logger: log,
	}
}

// Engine 返回已装配路由的 gin 引擎
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start 同步绑定端口后在后台提供服务。
// 绑定失败直接返回；服务期间的错误写入 errChan。
func (s *Server) Start(ctx context.Context, errChan chan<- error) error {
	ln, err := net.Listen("tcp", s.config.GetAddr())
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.config.GetAddr(), err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.InfoContext(ctx, "HTTP服务器开始监听",
		"addr", ln.Addr().String(),
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorContext(ctx, "HTTP服务器异常退出", "error", err)
			errChan <- err
		}
	}()
	return nil
}

// Addr 返回实际监听地址，未启动时为空
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 停止接收新连接并等待在途请求完成，超过 GracefulShutdownTimeout 后放弃
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	if s.config.GracefulShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.GracefulShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.ErrorContext(ctx, "HTTP服务器优雅关闭失败", "error", err)
		return fmt.Errorf("HTTP服务器关闭失败: %w", err)
	}

	s.logger.InfoContext(ctx, "HTTP服务器已关闭")
	return nil
}
