package components

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/philippgille/chromem-go"

	"rag-gateway/internal/eino/config"
)

var _ retriever.Retriever = (*ChromemRetriever)(nil)

// ChromemRetriever 基于 chromem-go 的本地向量检索器，适合单机部署和测试
type ChromemRetriever struct {
	collection     *chromem.Collection
	topK           int
	scoreThreshold float64
}

// NewChromemRetriever 打开（或创建）本地向量库中的集合。
// Path 为空时使用内存库。
func NewChromemRetriever(ctx context.Context, cfg *config.RetrieverConfig, embedder embedding.Embedder, topK int) (*ChromemRetriever, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Chromem.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Chromem.Path, cfg.Chromem.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", cfg.Chromem.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if name == "" {
		name = "knowledge_base"
	}

	collection, err := db.GetOrCreateCollection(name, nil, ChromemEmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	return NewChromemRetrieverFromCollection(collection, topK, cfg.ScoreThreshold), nil
}

// NewChromemRetrieverFromCollection 使用已有集合创建检索器
func NewChromemRetrieverFromCollection(collection *chromem.Collection, topK int, scoreThreshold float64) *ChromemRetriever {
	if topK <= 0 {
		topK = 5
	}
	return &ChromemRetriever{
		collection:     collection,
		topK:           topK,
		scoreThreshold: scoreThreshold,
	}
}

// ChromemEmbeddingFunc 将 Eino Embedder 适配为 chromem 的向量函数。
// embedder 为空时返回 nil，集合将使用 chromem 默认的向量函数。
func ChromemEmbeddingFunc(embedder embedding.Embedder) chromem.EmbeddingFunc {
	if embedder == nil {
		return nil
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("embedder returned no vectors")
		}
		out := make([]float32, len(vectors[0]))
		for i, v := range vectors[0] {
			out[i] = float32(v)
		}
		return out, nil
	}
}

// Retrieve 按相似度返回最相关的文档
func (r *ChromemRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if o.TopK != nil && *o.TopK > 0 {
		topK = *o.TopK
	}

	// chromem 要求 nResults 不超过文档数
	count := r.collection.Count()
	if count == 0 {
		return []*schema.Document{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := r.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem collection: %w", err)
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, res := range results {
		score := float64(res.Similarity)
		if r.scoreThreshold > 0 && score < r.scoreThreshold {
			continue
		}
		md := make(map[string]any, len(res.Metadata))
		for k, v := range res.Metadata {
			md[k] = v
		}
		doc := &schema.Document{ID: res.ID, Content: res.Content, MetaData: md}
		docs = append(docs, doc.WithScore(score))
	}
	return docs, nil
}
