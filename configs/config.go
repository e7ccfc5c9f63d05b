package configs

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	einoconfig "rag-gateway/internal/eino/config"
)

// Config 主配置结构体，定义了应用程序的所有配置项。
// 加载后作为只读值传给各组件构造函数。
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	Logging LoggingConfig         `yaml:"logging"`
	Cache   CacheConfig           `yaml:"cache"`
	Gateway GatewayConfig         `yaml:"gateway"`
	Runtime RuntimeConfig         `yaml:"runtime"`
	Events  EventsConfig          `yaml:"events"`
	Eino    einoconfig.EinoConfig `yaml:"eino"` // Eino 流水线配置
}

// ServerConfig 定义服务器相关的配置参数。
type ServerConfig struct {
	Host                    string        `yaml:"host"`
	Port                    int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout"`
	IdleTimeout             time.Duration `yaml:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// LoggingConfig 定义日志系统的配置参数。
type LoggingConfig struct {
	Level    string `yaml:"level" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" validate:"oneof=stdout stderr file"`
	FilePath string `yaml:"file_path"`
	Format   string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// CacheConfig 定义答案缓存的配置参数。
type CacheConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Backend    string           `yaml:"backend" validate:"oneof=redis memory"`
	TTLSeconds int              `yaml:"ttl_seconds" validate:"min=1"`
	KeyPrefix  string           `yaml:"key_prefix"`
	Redis      RedisCacheConfig `yaml:"redis"`
}

// RedisCacheConfig 定义缓存使用的 Redis 连接
type RedisCacheConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig 定义请求入口的参数。
type GatewayConfig struct {
	MaxQueryLength int           `yaml:"max_query_length" validate:"min=1"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// RuntimeConfig 定义编排运行时的配置。
type RuntimeConfig struct {
	Provider   string         `yaml:"provider" validate:"oneof=local temporal"`
	RunTimeout time.Duration  `yaml:"run_timeout"`
	Retention  time.Duration  `yaml:"retention"`
	Temporal   TemporalConfig `yaml:"temporal"`
}

// TemporalConfig 定义 Temporal 连接与任务队列
type TemporalConfig struct {
	HostPort        string        `yaml:"host_port"`
	Namespace       string        `yaml:"namespace"`
	TaskQueue       string        `yaml:"task_queue"`
	ActivityTimeout time.Duration `yaml:"activity_timeout"`
}

// EventsConfig 定义运行事件发布配置。
type EventsConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig 定义 NATS 发布器
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

var validate = validator.New()

// Validate 检查 Config 配置结构体的有效性。
// 先执行结构体标签校验，再依次调用各子配置的 Validate 方法。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config validation failed: %w", err)
	}

	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway config validation failed: %w", err)
	}

	if err := c.Runtime.Validate(); err != nil {
		return fmt.Errorf("runtime config validation failed: %w", err)
	}

	if c.Events.NATS.Enabled && c.Events.NATS.URL == "" {
		return fmt.Errorf("events config validation failed: nats url is required when enabled")
	}

	if err := c.Eino.Validate(); err != nil {
		return fmt.Errorf("eino config validation failed: %w", err)
	}

	return nil
}

// Validate 检查 ServerConfig 配置的有效性。
func (s *ServerConfig) Validate() error {
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	return nil
}

// Validate 检查 LoggingConfig 配置的有效性。
func (l *LoggingConfig) Validate() error {
	if l.Output == "file" && l.FilePath == "" {
		return fmt.Errorf("file path is required when output is file")
	}
	return nil
}

// Validate 检查 CacheConfig 配置的有效性。
func (c *CacheConfig) Validate() error {
	if c.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required for redis cache backend")
	}
	return nil
}

// TTL 返回缓存过期时长
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate 检查 GatewayConfig 配置的有效性。
// 轮询间隔必须小于等待上限。
func (g *GatewayConfig) Validate() error {
	if g.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive")
	}

	if g.PollInterval <= 0 || g.PollInterval >= g.WaitTimeout {
		return fmt.Errorf("poll_interval must be positive and shorter than wait_timeout")
	}

	return nil
}

// Validate 检查 RuntimeConfig 配置的有效性。
func (r *RuntimeConfig) Validate() error {
	if r.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive")
	}

	if r.Provider == "temporal" {
		if r.Temporal.HostPort == "" || r.Temporal.TaskQueue == "" {
			return fmt.Errorf("temporal host_port and task_queue are required")
		}
	}

	return nil
}

// GetAddr 获取服务器的完整监听地址。
// 返回格式为 "Host:Port" 的字符串。
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Summary 返回可打印的配置摘要，密钥类字段被遮盖
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"server_addr":        c.Server.GetAddr(),
		"log_level":          c.Logging.Level,
		"cache_enabled":      c.Cache.Enabled,
		"cache_backend":      c.Cache.Backend,
		"cache_ttl_seconds":  c.Cache.TTLSeconds,
		"redis_addr":         c.Cache.Redis.Addr,
		"redis_password":     mask(c.Cache.Redis.Password),
		"max_query_length":   c.Gateway.MaxQueryLength,
		"wait_timeout":       c.Gateway.WaitTimeout.String(),
		"runtime_provider":   c.Runtime.Provider,
		"temporal_host":      c.Runtime.Temporal.HostPort,
		"nats_enabled":       c.Events.NATS.Enabled,
		"retriever_provider": c.Eino.Retriever.Provider,
		"kb_max_results":     c.Eino.Pipeline.MaxResults,
		"generator_provider": c.Eino.Generator.Provider,
		"model_id":           c.Eino.Generator.Model,
		"max_tokens":         c.Eino.Generator.MaxTokens,
		"temperature":        c.Eino.Generator.Temperature,
		"generator_api_key":  mask(c.Eino.Generator.APIKey),
		"embedder_api_key":   mask(c.Eino.Embedder.APIKey),
		"guardrails_id":      c.Eino.Guardrail.ID,
		"guardrails_version": c.Eino.Guardrail.Version,
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
