package components

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/openai"

	"rag-gateway/internal/eino/config"
)

// NewGenerator 根据配置创建文本生成模型。
// bedrock 使用默认 AWS 凭证链，模型提供方由模型 ID 推断。
func NewGenerator(ctx context.Context, cfg *config.GeneratorConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "bedrock":
		llm, err := bedrock.NewWithContext(ctx, bedrock.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to create bedrock model: %w", err)
		}
		return llm, nil

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic model: %w", err)
		}
		return llm, nil

	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return llm, nil

	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.Provider)
	}
}
