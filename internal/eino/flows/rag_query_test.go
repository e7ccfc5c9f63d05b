package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/repositories"
	"rag-gateway/internal/domain/services"
	"rag-gateway/internal/eino/nodes"
	"rag-gateway/internal/infrastructure/stores/memory"
	"rag-gateway/pkg/logger"
)

// directionalGuardrail 按方向返回预设结论
type directionalGuardrail struct {
	input  *models.GuardrailOutcome
	output *models.GuardrailOutcome
	err    error

	mu    sync.Mutex
	calls []models.Direction
}

func (g *directionalGuardrail) Apply(ctx context.Context, _ string, d models.Direction) (*models.GuardrailOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls = append(g.calls, d)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if d == models.DirectionInput && g.input != nil {
		return g.input, nil
	}
	if d == models.DirectionOutput && g.output != nil {
		return g.output, nil
	}
	return &models.GuardrailOutcome{Action: models.GuardrailActionNone}, nil
}

type fixedRetriever struct {
	docs   []*schema.Document
	err    error
	called bool
}

func (r *fixedRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	r.called = true
	return r.docs, r.err
}

type failingRepo struct{ *memory.CacheRepository }

func (failingRepo) Put(context.Context, *models.CacheEntry) error {
	return errors.New("table unavailable")
}

type recordingPublisher struct {
	mu    sync.Mutex
	items []services.RunNotification
}

func (p *recordingPublisher) Publish(_ context.Context, n services.RunNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, n)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// failingModel 模拟模型服务不可用
type failingModel struct{ err error }

func (m failingModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, m.err
}

func (m failingModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", m.err
}

type fixture struct {
	guardrail *directionalGuardrail
	retriever *fixedRetriever
	model     llms.Model
	repo      *memory.CacheRepository
	publisher *recordingPublisher
	graph     *RAGQueryGraph
}

func newFixture(t *testing.T, answer string, opts ...func(*fixture)) *fixture {
	t.Helper()
	doc := (&schema.Document{
		Content:  "Amazon Bedrock is a fully managed service.",
		MetaData: map[string]any{"source_uri": "guide.pdf"},
	}).WithScore(0.87)

	f := &fixture{
		guardrail: &directionalGuardrail{},
		retriever: &fixedRetriever{docs: []*schema.Document{doc}},
		repo:      memory.NewCacheRepository(),
		publisher: &recordingPublisher{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f.build(t, answer, f.repo)
}

func (f *fixture) build(t *testing.T, answer string, repo repositories.CacheRepository) *fixture {
	t.Helper()
	log := logger.Nop()
	if f.model == nil {
		f.model = fake.NewFakeLLM([]string{answer})
	}
	f.graph = NewRAGQueryGraph(
		nodes.NewModerationGate(f.guardrail),
		nodes.NewRetrievalStage(f.retriever, 5, nodes.MetadataKeys{}),
		nodes.NewGenerationStage(f.model, 1024, 0.7),
		nodes.NewCacheStore(repo, time.Hour, log),
		log,
		WithStageTimeout(5*time.Second),
		WithPublisher(f.publisher),
	)
	return f
}

func newEvent(query string) models.RunEvent {
	return models.NewRunEvent(query, "req-1", time.Now()).WithRunID("run-1")
}

func TestRAGQueryGraph_Success(t *testing.T) {
	f := newFixture(t, "Amazon Bedrock is a fully managed service for foundation models.")
	ctx := context.Background()

	status := f.graph.Execute(ctx, newEvent("What is Amazon Bedrock?"))

	require.Equal(t, models.StateSucceeded, status.State)
	require.NotNil(t, status.Result)
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, "What is Amazon Bedrock?", status.Result.Query)
	assert.Equal(t, "Amazon Bedrock is a fully managed service for foundation models.", status.Result.Answer)
	assert.False(t, status.Result.Cached)
	require.Len(t, status.Result.Sources, 1)
	assert.Equal(t, "guide.pdf", status.Result.Sources[0].Title)
	assert.InDelta(t, 0.87, *status.Result.Sources[0].Score, 1e-9)
	assert.Nil(t, status.Error)

	assert.Equal(t, []models.Direction{models.DirectionInput, models.DirectionOutput}, f.guardrail.calls)

	entry, err := f.repo.Get(ctx, models.QueryKey("What is Amazon Bedrock?"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, status.Result.Answer, entry.Answer)

	require.Len(t, f.publisher.items, 1)
	assert.Equal(t, models.StateSucceeded, f.publisher.items[0].State)
	assert.Equal(t, "req-1", f.publisher.items[0].RequestID)
}

func TestRAGQueryGraph_InputBlocked(t *testing.T) {
	f := newFixture(t, "unused", func(f *fixture) {
		f.guardrail.input = &models.GuardrailOutcome{
			Action: models.GuardrailActionIntervened,
			Topics: []string{"investment_advice"},
		}
	})

	status := f.graph.Execute(context.Background(), newEvent("Give me stock tips"))

	require.Equal(t, models.StateBlocked, status.State)
	require.NotNil(t, status.Error)
	assert.Equal(t, models.KindModerationBlocked, status.Error.Kind)
	assert.Equal(t, models.StateCheckInput, status.Error.Stage)
	assert.Equal(t, "Topic policy violation", status.Error.Cause)
	assert.False(t, f.retriever.called)
	assert.Zero(t, f.repo.Len())
	assert.Equal(t, models.KindModerationBlocked, f.publisher.items[0].ErrorKind)
}

func TestRAGQueryGraph_OutputBlocked(t *testing.T) {
	f := newFixture(t, "contact me at someone@example.com", func(f *fixture) {
		f.guardrail.output = &models.GuardrailOutcome{
			Action: models.GuardrailActionIntervened,
			PII:    []string{"EMAIL"},
		}
	})

	status := f.graph.Execute(context.Background(), newEvent("How do I reach support?"))

	require.Equal(t, models.StateBlocked, status.State)
	assert.Equal(t, models.StateCheckOutput, status.Error.Stage)
	assert.Equal(t, "PII detected", status.Error.Cause)
	assert.Nil(t, status.Result)
	assert.Zero(t, f.repo.Len(), "blocked answers must not be cached")
}

func TestRAGQueryGraph_RetrievalFailure(t *testing.T) {
	f := newFixture(t, "unused", func(f *fixture) {
		f.retriever.err = errors.New("knowledge base unavailable")
	})

	status := f.graph.Execute(context.Background(), newEvent("What is Amazon Bedrock?"))

	require.Equal(t, models.StateFailed, status.State)
	require.NotNil(t, status.Error)
	assert.Equal(t, models.KindStageBackend, status.Error.Kind)
	assert.Equal(t, models.StateRetrieve, status.Error.Stage)
	assert.Zero(t, f.repo.Len())
	assert.Equal(t, []models.Direction{models.DirectionInput}, f.guardrail.calls)
}

func TestRAGQueryGraph_GenerationFailure(t *testing.T) {
	f := newFixture(t, "unused", func(f *fixture) {
		f.model = failingModel{err: errors.New("model throttled")}
	})

	status := f.graph.Execute(context.Background(), newEvent("What is Amazon Bedrock?"))

	require.Equal(t, models.StateFailed, status.State)
	require.NotNil(t, status.Error)
	assert.Equal(t, models.KindStageBackend, status.Error.Kind)
	assert.Equal(t, models.StateGenerate, status.Error.Stage)
	assert.Nil(t, status.Result)
	assert.True(t, f.retriever.called)
	assert.Zero(t, f.repo.Len())
	assert.Equal(t, []models.Direction{models.DirectionInput}, f.guardrail.calls, "output moderation must not run")
	require.Len(t, f.publisher.items, 1)
	assert.Equal(t, models.StateFailed, f.publisher.items[0].State)
}

func TestRAGQueryGraph_ModerationBackendFailure(t *testing.T) {
	f := newFixture(t, "unused", func(f *fixture) {
		f.guardrail.err = errors.New("throttled")
	})

	status := f.graph.Execute(context.Background(), newEvent("hello"))

	require.Equal(t, models.StateFailed, status.State)
	assert.Equal(t, models.KindStageBackend, status.Error.Kind)
	assert.Equal(t, models.StateCheckInput, status.Error.Stage)
	assert.False(t, f.retriever.called)
}

func TestRAGQueryGraph_EmptyRetrievalStillGenerates(t *testing.T) {
	f := newFixture(t, "I could not find that in the knowledge base.", func(f *fixture) {
		f.retriever.docs = nil
	})

	status := f.graph.Execute(context.Background(), newEvent("Unrelated question"))

	require.Equal(t, models.StateSucceeded, status.State)
	assert.Empty(t, status.Result.Sources)
}

func TestRAGQueryGraph_CacheWriteFailureIsTransparent(t *testing.T) {
	f := &fixture{
		guardrail: &directionalGuardrail{},
		retriever: &fixedRetriever{},
		repo:      memory.NewCacheRepository(),
		publisher: &recordingPublisher{},
	}
	f.build(t, "answer", failingRepo{f.repo})

	status := f.graph.Execute(context.Background(), newEvent("q"))

	require.Equal(t, models.StateSucceeded, status.State)
	assert.Equal(t, "answer", status.Result.Answer)
}

func TestRAGQueryGraph_CanceledRunFails(t *testing.T) {
	f := newFixture(t, "answer")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status := f.graph.Execute(ctx, newEvent("q"))

	assert.Equal(t, models.StateFailed, status.State)
	assert.Zero(t, f.repo.Len())
}
