// Package components 提供 Eino 组件的工厂函数
package components

import (
	"context"
	"encoding/json"
	"fmt"

	es8retriever "github.com/cloudwego/eino-ext/components/retriever/es8"
	"github.com/cloudwego/eino-ext/components/retriever/es8/search_mode"
	milvusretriever "github.com/cloudwego/eino-ext/components/retriever/milvus"
	qdrantretriever "github.com/cloudwego/eino-ext/components/retriever/qdrant"
	redisretriever "github.com/cloudwego/eino-ext/components/retriever/redis"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	milvusClient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	qdrantClient "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"rag-gateway/internal/eino/config"
)

// NewRetriever 根据配置创建知识库检索器，topK 为单次检索的最大结果数
func NewRetriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (retriever.Retriever, error) {
	if cfg.Provider != "chromem" && embedder == nil {
		return nil, fmt.Errorf("%s retriever requires an embedder", cfg.Provider)
	}

	switch cfg.Provider {
	case "qdrant":
		return newQdrantRetriever(ctx, cfg, embedder, topK)
	case "milvus":
		return newMilvusRetriever(ctx, cfg, embedder, topK)
	case "redis":
		return newRedisRetriever(ctx, cfg, embedder, topK)
	case "es8":
		return newES8Retriever(ctx, cfg, embedder, topK)
	case "chromem":
		return NewChromemRetriever(ctx, cfg, embedder, topK)
	default:
		return nil, fmt.Errorf("unsupported retriever provider: %s", cfg.Provider)
	}
}

// newQdrantRetriever 创建 Qdrant Retriever
func newQdrantRetriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (retriever.Retriever, error) {
	clientCfg := &qdrantClient.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	}

	client, err := qdrantClient.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	retrieverCfg := &qdrantretriever.Config{
		Client:     client,
		Collection: cfg.Collection,
		Embedding:  embedder,
		TopK:       topK,
	}

	if cfg.ScoreThreshold > 0 {
		threshold := cfg.ScoreThreshold
		retrieverCfg.ScoreThreshold = &threshold
	}

	return qdrantretriever.NewRetriever(ctx, retrieverCfg)
}

// newMilvusRetriever 创建 Milvus Retriever
func newMilvusRetriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (retriever.Retriever, error) {
	client, err := milvusClient.NewClient(ctx, milvusClient.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Milvus.Host, cfg.Milvus.Port),
		Username: cfg.Milvus.Username,
		Password: cfg.Milvus.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	retrieverCfg := &milvusretriever.RetrieverConfig{
		Client:       client,
		Collection:   cfg.Collection,
		VectorField:  cfg.Milvus.VectorField,
		OutputFields: cfg.Milvus.OutputFields,
		TopK:         topK,
		Embedding:    embedder,
	}
	if cfg.Milvus.MetricType != "" {
		retrieverCfg.MetricType = entity.MetricType(cfg.Milvus.MetricType)
	}

	return milvusretriever.NewRetriever(ctx, retrieverCfg)
}

// newRedisRetriever 创建 Redis Retriever
func newRedisRetriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (retriever.Retriever, error) {
	// 向量检索结果需要 RESP2 协议解析
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Protocol: 2,
	})

	retrieverCfg := &redisretriever.RetrieverConfig{
		Client:       rdb,
		Index:        cfg.Redis.Index,
		VectorField:  cfg.Redis.VectorField,
		ReturnFields: cfg.Redis.ReturnFields,
		TopK:         topK,
		Embedding:    embedder,
	}
	if cfg.ScoreThreshold > 0 {
		threshold := cfg.ScoreThreshold
		retrieverCfg.DistanceThreshold = &threshold
	}

	return redisretriever.NewRetriever(ctx, retrieverCfg)
}

// newES8Retriever 创建 Elasticsearch Retriever
func newES8Retriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (retriever.Retriever, error) {
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ES8.Addresses,
		Username:  cfg.ES8.Username,
		Password:  cfg.ES8.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	k := topK
	retrieverCfg := &es8retriever.RetrieverConfig{
		Client: esClient,
		Index:  cfg.ES8.Index,
		TopK:   topK,
		SearchMode: search_mode.SearchModeApproximate(&search_mode.ApproximateConfig{
			QueryFieldName:  cfg.ES8.ContentField,
			VectorFieldName: cfg.ES8.VectorField,
			Hybrid:          cfg.ES8.SearchMode == "hybrid",
			K:               &k,
		}),
		ResultParser: es8HitParser(cfg.ES8.ContentField, cfg.ES8.VectorField),
		Embedding:    embedder,
	}
	if cfg.ScoreThreshold > 0 {
		threshold := cfg.ScoreThreshold
		retrieverCfg.ScoreThreshold = &threshold
	}

	return es8retriever.NewRetriever(ctx, retrieverCfg)
}

// es8HitParser 将命中文档转换为 schema.Document，向量字段不进入元数据
func es8HitParser(contentField, vectorField string) func(ctx context.Context, hit types.Hit) (*schema.Document, error) {
	return func(ctx context.Context, hit types.Hit) (*schema.Document, error) {
		source := make(map[string]any)
		if len(hit.Source_) > 0 {
			if err := json.Unmarshal(hit.Source_, &source); err != nil {
				return nil, fmt.Errorf("decode es8 hit source: %w", err)
			}
		}

		doc := &schema.Document{MetaData: make(map[string]any, len(source))}
		if hit.Id_ != nil {
			doc.ID = *hit.Id_
		}
		for k, v := range source {
			switch k {
			case contentField:
				if s, ok := v.(string); ok {
					doc.Content = s
				}
			case vectorField:
			default:
				doc.MetaData[k] = v
			}
		}
		if hit.Score_ != nil {
			doc = doc.WithScore(float64(*hit.Score_))
		}
		return doc, nil
	}
}
