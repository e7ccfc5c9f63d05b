// Package config 定义 Eino 流水线的配置结构
package config

import (
	"fmt"
	"time"
)

// EinoConfig Eino 流水线的总配置结构。
// 包含 Embedder、Retriever、Generator、Guardrail 组件以及流水线参数和回调系统的配置。
type EinoConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Generator GeneratorConfig `yaml:"generator"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Callbacks CallbacksConfig `yaml:"callbacks"`
}

// EmbedderConfig 定义查询向量化服务的配置。
type EmbedderConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=openai"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Timeout    int    `yaml:"timeout"`    // 秒
	Dimensions *int   `yaml:"dimensions"` // 向量维度（可选）

	// OpenAI/Azure 专用
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
}

// RetrieverConfig 定义知识库检索器的配置。
type RetrieverConfig struct {
	Provider       string  `yaml:"provider" validate:"oneof=qdrant milvus redis es8 chromem"`
	Collection     string  `yaml:"collection"`
	ScoreThreshold float64 `yaml:"score_threshold"`

	// 文档元数据中来源 URI 和标题所在的键
	SourceURIKey string `yaml:"source_uri_key"`
	TitleKey     string `yaml:"title_key"`

	Qdrant  QdrantRetrieverConfig  `yaml:"qdrant"`
	Milvus  MilvusRetrieverConfig  `yaml:"milvus"`
	Redis   RedisRetrieverConfig   `yaml:"redis"`
	ES8     ES8RetrieverConfig     `yaml:"es8"`
	Chromem ChromemRetrieverConfig `yaml:"chromem"`
}

// QdrantRetrieverConfig 定义 Qdrant 检索器的专用配置。
type QdrantRetrieverConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// MilvusRetrieverConfig 定义 Milvus 检索器的专用配置。
type MilvusRetrieverConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	VectorField  string   `yaml:"vector_field"`
	OutputFields []string `yaml:"output_fields"`
	MetricType   string   `yaml:"metric_type"`
}

// RedisRetrieverConfig 定义 Redis 检索器的专用配置。
type RedisRetrieverConfig struct {
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Index        string   `yaml:"index"`
	VectorField  string   `yaml:"vector_field"`
	ReturnFields []string `yaml:"return_fields"`
}

// ES8RetrieverConfig 定义 Elasticsearch 8 检索器的专用配置。
type ES8RetrieverConfig struct {
	Addresses    []string `yaml:"addresses"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	Index        string   `yaml:"index"`
	ContentField string   `yaml:"content_field"`
	VectorField  string   `yaml:"vector_field"`
	SearchMode   string   `yaml:"search_mode"` // knn, hybrid
}

// ChromemRetrieverConfig 定义本地 chromem 向量库的配置。
// Path 为空时使用内存库。
type ChromemRetrieverConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// GeneratorConfig 定义文本生成模型的配置。
type GeneratorConfig struct {
	Provider    string  `yaml:"provider" validate:"oneof=bedrock anthropic openai"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=1"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// GuardrailConfig 定义内容安全策略。
// 四个类别分别对应主题、内容过滤、词表和敏感信息。
type GuardrailConfig struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version"`

	// DeniedTopics 主题名到触发关键词的映射
	DeniedTopics map[string][]string `yaml:"denied_topics"`

	// ContentFilters 内容过滤类别到正则表达式的映射
	ContentFilters map[string]string `yaml:"content_filters"`

	// BlockedWords 精确匹配的屏蔽词（不区分大小写）
	BlockedWords []string `yaml:"blocked_words"`

	// PIITypes 需要检测的敏感信息类型：EMAIL, PHONE, CREDIT_CARD, SSN, IP_ADDRESS
	PIITypes []string `yaml:"pii_types"`
}

// PipelineConfig 定义流水线各阶段的参数。
type PipelineConfig struct {
	MaxResults   int           `yaml:"max_results" validate:"min=1,max=100"`
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// CallbacksConfig 定义 Eino 回调系统配置。
type CallbacksConfig struct {
	Logging LoggingCallbackConfig `yaml:"logging"`
	Metrics MetricsCallbackConfig `yaml:"metrics"`
	Tracing TracingCallbackConfig `yaml:"tracing"`
}

// LoggingCallbackConfig 定义日志回调的配置。
type LoggingCallbackConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsCallbackConfig 定义 Prometheus 指标回调的配置。
type MetricsCallbackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Endpoint  string `yaml:"endpoint"`
}

// TracingCallbackConfig 定义 OpenTelemetry 链路追踪回调的配置。
type TracingCallbackConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`

	// Endpoint OTLP 收集端地址，为空时只在进程内创建 span 不导出
	Endpoint string `yaml:"endpoint"`
	// Protocol grpc 或 http/protobuf
	Protocol   string  `yaml:"protocol" validate:"omitempty,oneof=grpc http/protobuf"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate" validate:"min=0,max=1"`
}

// Validate 校验组件组合是否可用
func (c *EinoConfig) Validate() error {
	switch c.Retriever.Provider {
	case "qdrant":
		if c.Retriever.Qdrant.Host == "" || c.Retriever.Qdrant.Port <= 0 {
			return fmt.Errorf("qdrant retriever requires host and port")
		}
	case "milvus":
		if c.Retriever.Milvus.Host == "" {
			return fmt.Errorf("milvus retriever requires host")
		}
	case "redis":
		if c.Retriever.Redis.Addr == "" || c.Retriever.Redis.Index == "" {
			return fmt.Errorf("redis retriever requires addr and index")
		}
	case "es8":
		if len(c.Retriever.ES8.Addresses) == 0 || c.Retriever.ES8.Index == "" {
			return fmt.Errorf("es8 retriever requires addresses and index")
		}
	}

	if (c.Retriever.Provider == "qdrant" || c.Retriever.Provider == "milvus") && c.Retriever.Collection == "" {
		return fmt.Errorf("%s retriever requires collection", c.Retriever.Provider)
	}

	if c.Generator.Model == "" {
		return fmt.Errorf("generator model is required")
	}

	return nil
}

// DefaultEinoConfig 创建并返回一个包含默认值的 EinoConfig 对象。
// 默认使用 Bedrock 上的 Claude 3 Haiku 生成答案，Qdrant 作为知识库。
func DefaultEinoConfig() *EinoConfig {
	return &EinoConfig{
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Timeout:  30,
		},
		Retriever: RetrieverConfig{
			Provider:     "qdrant",
			Collection:   "knowledge_base",
			SourceURIKey: "x-amz-bedrock-kb-source-uri",
			TitleKey:     "x-amz-bedrock-kb-source-title",
			Qdrant: QdrantRetrieverConfig{
				Host: "localhost",
				Port: 6334,
			},
			ES8: ES8RetrieverConfig{
				ContentField: "content",
				VectorField:  "vector_content",
				SearchMode:   "knn",
			},
		},
		Generator: GeneratorConfig{
			Provider:    "bedrock",
			Model:       "anthropic.claude-3-haiku-20240307-v1:0",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Guardrail: GuardrailConfig{
			Version:  "DRAFT",
			PIITypes: []string{"EMAIL", "PHONE", "CREDIT_CARD", "SSN"},
		},
		Pipeline: PipelineConfig{
			MaxResults:   5,
			StageTimeout: 20 * time.Second,
		},
		Callbacks: CallbacksConfig{
			Logging: LoggingCallbackConfig{
				Enabled: true,
			},
			Metrics: MetricsCallbackConfig{
				Enabled:   true,
				Namespace: "rag_gateway",
				Endpoint:  "/metrics",
			},
			Tracing: TracingCallbackConfig{
				Enabled:     false,
				ServiceName: "rag-gateway",
				Protocol:    "grpc",
				SampleRate:  1.0,
			},
		},
	}
}
