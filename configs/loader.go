package configs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	einoconfig "rag-gateway/internal/eino/config"
)

// ConfigPathEnv 指定配置文件路径的环境变量
const ConfigPathEnv = "RAG_GATEWAY_CONFIG"

// Load 加载并验证应用程序配置。
// 它按照以下优先级顺序加载配置：
// 1. 默认配置
// 2. 配置文件（$RAG_GATEWAY_CONFIG 或默认搜索路径中第一个存在的文件）
// 3. 环境变量（覆盖配置文件中的值）
func Load(ctx context.Context) (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	config := DefaultConfig()

	if err := loadFromFile(config, configPaths()); err != nil {
		return nil, err
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func configPaths() []string {
	paths := []string{
		"configs/config.yaml",
		"config.yaml",
		"/etc/rag-gateway/config.yaml",
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		paths = append([]string{p}, paths...)
	}
	return paths
}

// loadFromFile 读取第一个存在的配置文件
func loadFromFile(config *Config, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// DefaultConfig 创建并返回一个包含默认值的 Config 对象。
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                    "0.0.0.0",
			Port:                    8080,
			ReadTimeout:             30 * time.Second,
			WriteTimeout:            60 * time.Second,
			IdleTimeout:             60 * time.Second,
			GracefulShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			Format: "text",
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "redis",
			TTLSeconds: 86400,
			KeyPrefix:  "rag:cache:",
			Redis: RedisCacheConfig{
				Addr: "localhost:6379",
			},
		},
		Gateway: GatewayConfig{
			MaxQueryLength: 1000,
			WaitTimeout:    30 * time.Second,
			PollInterval:   500 * time.Millisecond,
		},
		Runtime: RuntimeConfig{
			Provider:   "local",
			RunTimeout: 5 * time.Minute,
			Retention:  10 * time.Minute,
			Temporal: TemporalConfig{
				HostPort:        "localhost:7233",
				Namespace:       "default",
				TaskQueue:       "rag-query",
				ActivityTimeout: 2 * time.Minute,
			},
		},
		Events: EventsConfig{
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				SubjectPrefix: "rag.runs",
			},
		},
		Eino: *einoconfig.DefaultEinoConfig(),
	}
}

// loadFromEnv 从环境变量中读取配置并覆盖 Config 中的值。
// 数值类变量格式错误时返回错误，而不是静默忽略。
func loadFromEnv(config *Config) error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		config.Server.Port = p
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}

	// 缓存
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_ENABLED: %w", err)
		}
		config.Cache.Enabled = b
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL_SECONDS: %w", err)
		}
		config.Cache.TTLSeconds = n
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Cache.Redis.Password = v
	}

	// 生成模型
	if v := os.Getenv("MODEL_ID"); v != "" {
		config.Eino.Generator.Model = v
	}
	if v := os.Getenv("MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_TOKENS: %w", err)
		}
		config.Eino.Generator.MaxTokens = n
	}
	if v := os.Getenv("GENERATOR_PROVIDER"); v != "" {
		config.Eino.Generator.Provider = v
	}

	// 检索
	if v := os.Getenv("KB_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KB_MAX_RESULTS: %w", err)
		}
		config.Eino.Pipeline.MaxResults = n
	}
	if v := os.Getenv("RETRIEVER_PROVIDER"); v != "" {
		config.Eino.Retriever.Provider = v
	}

	// 内容安全
	if v := os.Getenv("GUARDRAILS_ID"); v != "" {
		config.Eino.Guardrail.ID = v
	}
	if v := os.Getenv("GUARDRAILS_VERSION"); v != "" {
		config.Eino.Guardrail.Version = v
	}

	// OpenAI 同时用于查询向量化，生成模型为 openai 时也复用
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Eino.Embedder.APIKey = v
		if config.Eino.Generator.Provider == "openai" && config.Eino.Generator.APIKey == "" {
			config.Eino.Generator.APIKey = v
		}
	}

	// 运行时与事件
	if v := os.Getenv("RUNTIME_PROVIDER"); v != "" {
		config.Runtime.Provider = v
	}
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		config.Runtime.Temporal.HostPort = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		config.Events.NATS.URL = v
		config.Events.NATS.Enabled = true
	}

	return nil
}
