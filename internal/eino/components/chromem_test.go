package components

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-gateway/internal/eino/config"
)

// keywordEmbedder 按关键词出现情况生成向量，便于断言排序
type keywordEmbedder struct {
	keywords []string
}

func (e *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, len(e.keywords)+1)
		lower := strings.ToLower(text)
		for j, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				vec[j] = 1
			}
		}
		vec[len(e.keywords)] = 0.1
		out[i] = vec
	}
	return out, nil
}

func newTestCollection(t *testing.T) *chromem.Collection {
	t.Helper()
	embedder := &keywordEmbedder{keywords: []string{"bedrock", "lambda", "s3"}}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("kb", nil, ChromemEmbeddingFunc(embedder))
	require.NoError(t, err)

	err = col.AddDocuments(context.Background(), []chromem.Document{
		{ID: "1", Content: "Amazon Bedrock is a managed service.", Metadata: map[string]string{"source_uri": "bedrock.pdf"}},
		{ID: "2", Content: "AWS Lambda runs code without servers.", Metadata: map[string]string{"source_uri": "lambda.pdf"}},
		{ID: "3", Content: "S3 stores objects.", Metadata: map[string]string{"source_uri": "s3.pdf"}},
	}, 1)
	require.NoError(t, err)
	return col
}

func TestChromemRetriever_Retrieve(t *testing.T) {
	r := NewChromemRetrieverFromCollection(newTestCollection(t), 2, 0)

	docs, err := r.Retrieve(context.Background(), "what is bedrock")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "bedrock.pdf", docs[0].MetaData["source_uri"])
	assert.Greater(t, docs[0].Score(), docs[1].Score())
}

func TestChromemRetriever_TopKClampedToCount(t *testing.T) {
	r := NewChromemRetrieverFromCollection(newTestCollection(t), 2, 0)

	docs, err := r.Retrieve(context.Background(), "lambda", retriever.WithTopK(10))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestChromemRetriever_ScoreThreshold(t *testing.T) {
	r := NewChromemRetrieverFromCollection(newTestCollection(t), 3, 0.9)

	docs, err := r.Retrieve(context.Background(), "lambda")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].ID)
}

func TestChromemRetriever_EmptyCollection(t *testing.T) {
	cfg := &config.RetrieverConfig{Provider: "chromem", Collection: "empty"}
	r, err := NewChromemRetriever(context.Background(), cfg, &keywordEmbedder{keywords: []string{"x"}}, 5)
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNewRetriever_Validation(t *testing.T) {
	_, err := NewRetriever(context.Background(), &config.RetrieverConfig{Provider: "qdrant"}, nil, 5)
	assert.Error(t, err)

	_, err = NewRetriever(context.Background(), &config.RetrieverConfig{Provider: "pinecone"}, &keywordEmbedder{}, 5)
	assert.Error(t, err)
}

func TestNewGenerator_UnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), &config.GeneratorConfig{Provider: "cohere", Model: "x"})
	assert.Error(t, err)
}
