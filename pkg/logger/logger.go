// Package logger 提供基于 slog 的日志接口
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger 日志器接口
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// 带上下文的日志方法，会自动附加 InjectFields 注入的字段
	DebugContext(ctx context.Context, msg string, args ...interface{})
	InfoContext(ctx context.Context, msg string, args ...interface{})
	WarnContext(ctx context.Context, msg string, args ...interface{})
	ErrorContext(ctx context.Context, msg string, args ...interface{})

	// With 返回携带固定字段的子日志器
	With(args ...interface{}) Logger

	// SlogLogger 底层 slog.Logger，供 Temporal 等需要 slog 的组件使用
	SlogLogger() *slog.Logger
}

// Config 日志配置
type Config struct {
	Level    slog.Level
	Format   string // text | json
	Output   string // stdout | stderr | file
	FilePath string // Output 为 file 时使用
}

// appLogger 直接复用 slog.Logger 的日志方法
type appLogger struct {
	*slog.Logger
}

func wrap(h slog.Handler) Logger {
	return &appLogger{Logger: slog.New(&contextHandler{Handler: h})}
}

// Default 基于 slog 默认 handler 的日志器
func Default() Logger {
	return wrap(slog.Default().Handler())
}

// New 根据配置创建日志器。
// 日志文件无法打开时退回标准输出并在标准错误提示。
func New(config Config) Logger {
	w, err := openOutput(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志输出初始化失败，改用标准输出: %v\n", err)
		w = os.Stdout
	}
	return NewWithWriter(config, w)
}

// NewWithWriter 使用指定 Writer 创建日志器，测试中用于捕获输出
func NewWithWriter(config Config, w io.Writer) Logger {
	opts := &slog.HandlerOptions{Level: config.Level}
	if config.Format == "json" {
		return wrap(slog.NewJSONHandler(w, opts))
	}
	return wrap(slog.NewTextHandler(w, opts))
}

// Nop 丢弃所有输出
func Nop() Logger {
	return NewWithWriter(Config{Level: slog.LevelError + 1}, io.Discard)
}

// ParseLevel 解析日志级别，大小写不敏感，未知值按 info 处理
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(config Config) (io.Writer, error) {
	switch config.Output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if config.FilePath == "" {
			return os.Stdout, nil
		}
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录: %w", err)
		}
		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件: %w", err)
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

func (l *appLogger) With(args ...interface{}) Logger {
	return &appLogger{Logger: l.Logger.With(args...)}
}

func (l *appLogger) SlogLogger() *slog.Logger {
	return l.Logger
}
