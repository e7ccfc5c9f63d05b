package components

import (
	"context"
	"fmt"
	"time"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"rag-gateway/internal/eino/config"
)

// NewEmbedder 创建检索时使用的查询向量化组件。
// chromem 检索器在没有 embedder 时会退回 chromem 自带的向量函数，其余后端必须配置。
func NewEmbedder(ctx context.Context, cfg *config.EmbedderConfig) (embedding.Embedder, error) {
	if cfg.Provider != "openai" {
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires api_key (or OPENAI_API_KEY)")
	}

	ec := &openaiembed.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.Timeout) * time.Second,
		Dimensions: cfg.Dimensions,
		ByAzure:    cfg.ByAzure,
	}
	if cfg.ByAzure {
		ec.APIVersion = cfg.APIVersion
	}

	emb, err := openaiembed.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder (model=%s): %w", cfg.Model, err)
	}
	return emb, nil
}
