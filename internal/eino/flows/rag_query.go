// Package flows 提供 Eino Graph 流程定义
package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"rag-gateway/internal/domain/models"
	"rag-gateway/internal/domain/services"
	"rag-gateway/internal/eino/nodes"
	"rag-gateway/pkg/logger"
)

// 图中各节点的名称，与回调中的 RunInfo.Name 一致
const (
	NodeCheckInput  = "check_input"
	NodeRetrieve    = "retrieve"
	NodeGenerate    = "generate"
	NodeCheckOutput = "check_output"
	NodeCacheWrite  = "cache_write"

	graphName = "rag_query"
)

var _ services.RunExecutor = (*RAGQueryGraph)(nil)

// RAGQueryGraph 问答编排流程：
// 输入审核 -> 检索 -> 生成 -> 输出审核 -> 写缓存。
// 任一审核拦截进入 BLOCKED，任一阶段后端失败进入 FAILED，写缓存失败不影响结果。
type RAGQueryGraph struct {
	moderation *nodes.ModerationGate
	retrieval  *nodes.RetrievalStage
	generation *nodes.GenerationStage
	cache      *nodes.CacheStore

	stageTimeout     time.Duration
	publisher        services.RunEventPublisher
	logger           logger.Logger
	callbackHandlers []callbacks.Handler
	now              func() time.Time

	once     sync.Once
	runnable compose.Runnable[models.RunEvent, models.RunEvent]
	err      error
}

// Option RAGQueryGraph 可选项
type Option func(*RAGQueryGraph)

// WithStageTimeout 设置单个阶段的超时时间
func WithStageTimeout(d time.Duration) Option {
	return func(g *RAGQueryGraph) {
		g.stageTimeout = d
	}
}

// WithPublisher 设置终态事件发布器
func WithPublisher(p services.RunEventPublisher) Option {
	return func(g *RAGQueryGraph) {
		if p != nil {
			g.publisher = p
		}
	}
}

// WithCallbacks 设置运行时注入的回调处理器
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return func(g *RAGQueryGraph) {
		g.callbackHandlers = append(g.callbackHandlers, handlers...)
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(g *RAGQueryGraph) {
		g.now = now
	}
}

// NewRAGQueryGraph 创建问答编排流程
func NewRAGQueryGraph(
	moderation *nodes.ModerationGate,
	retrieval *nodes.RetrievalStage,
	generation *nodes.GenerationStage,
	cache *nodes.CacheStore,
	log logger.Logger,
	opts ...Option,
) *RAGQueryGraph {
	if log == nil {
		log = logger.Default()
	}
	g := &RAGQueryGraph{
		moderation: moderation,
		retrieval:  retrieval,
		generation: generation,
		cache:      cache,
		publisher:  services.NopPublisher{},
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Compile 编译 Graph 为 Runnable，只会编译一次
func (g *RAGQueryGraph) Compile(ctx context.Context) (compose.Runnable[models.RunEvent, models.RunEvent], error) {
	g.once.Do(func() {
		g.runnable, g.err = g.build(ctx)
	})
	return g.runnable, g.err
}

func (g *RAGQueryGraph) build(ctx context.Context) (compose.Runnable[models.RunEvent, models.RunEvent], error) {
	graph := compose.NewGraph[models.RunEvent, models.RunEvent]()

	stages := []struct {
		key string
		fn  func(context.Context, models.RunEvent) (models.RunEvent, error)
	}{
		{NodeCheckInput, g.checkInput},
		{NodeRetrieve, g.retrieve},
		{NodeGenerate, g.generate},
		{NodeCheckOutput, g.checkOutput},
		{NodeCacheWrite, g.cacheWrite},
	}

	for _, st := range stages {
		if err := graph.AddLambdaNode(st.key, compose.InvokableLambda(st.fn), compose.WithNodeName(st.key)); err != nil {
			return nil, fmt.Errorf("add %s node: %w", st.key, err)
		}
	}

	if err := graph.AddEdge(compose.START, NodeCheckInput); err != nil {
		return nil, fmt.Errorf("add edge START->%s: %w", NodeCheckInput, err)
	}

	// 前四个阶段之后都可能进入终态，通过分支直接结束
	for i := 0; i < len(stages)-1; i++ {
		from, next := stages[i].key, stages[i+1].key
		if err := graph.AddBranch(from, continueOrEnd(next)); err != nil {
			return nil, fmt.Errorf("add branch %s->%s: %w", from, next, err)
		}
	}

	if err := graph.AddEdge(NodeCacheWrite, compose.END); err != nil {
		return nil, fmt.Errorf("add edge %s->END: %w", NodeCacheWrite, err)
	}

	return graph.Compile(ctx, compose.WithGraphName(graphName))
}

// continueOrEnd 记录已进入终态时结束，否则进入下一阶段
func continueOrEnd(next string) *compose.GraphBranch {
	return compose.NewGraphBranch(func(ctx context.Context, event models.RunEvent) (string, error) {
		if event.State.IsTerminal() {
			return compose.END, nil
		}
		return next, nil
	}, map[string]bool{
		next:        true,
		compose.END: true,
	})
}

// Execute 运行一次完整流程并返回终态
func (g *RAGQueryGraph) Execute(ctx context.Context, event models.RunEvent) models.RunStatus {
	ctx = logger.InjectFields(ctx, logger.Fields{
		"run_id":     event.RunID,
		"request_id": event.RequestID,
	})

	status := g.execute(ctx, event)

	n := services.RunNotification{
		RunID:           event.RunID,
		RequestID:       event.RequestID,
		State:           status.State,
		ExecutionTimeMs: g.elapsedMs(event.StartTime),
	}
	if status.Error != nil {
		n.ErrorKind = status.Error.Kind
		n.Stage = status.Error.Stage
	}
	if err := g.publisher.Publish(ctx, n); err != nil {
		g.logger.WarnContext(ctx, "发布运行事件失败", "error", err)
	}

	return status
}

func (g *RAGQueryGraph) execute(ctx context.Context, event models.RunEvent) models.RunStatus {
	runnable, err := g.Compile(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "编译流程失败", "error", err)
		return failedStatus(event.RunID, fmt.Errorf("compile graph: %w", err))
	}

	event = event.WithState(models.StateCheckInput)

	var runOpts []compose.Option
	if len(g.callbackHandlers) > 0 {
		runOpts = append(runOpts, compose.WithCallbacks(g.callbackHandlers...))
	}

	out, err := runnable.Invoke(ctx, event, runOpts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = models.NewPipelineError(models.KindTimeout, "", "run aborted", errors.Join(ctxErr, err))
		}
		g.logger.ErrorContext(ctx, "流程执行失败", "error", err)
		return failedStatus(event.RunID, err)
	}

	return g.statusOf(ctx, out)
}

func (g *RAGQueryGraph) statusOf(ctx context.Context, out models.RunEvent) models.RunStatus {
	status := models.RunStatus{RunID: out.RunID, State: out.State}

	switch out.State {
	case models.StateSucceeded:
		status.Result = out.Result
		g.logger.InfoContext(ctx, "流程执行成功", "execution_time_ms", out.Result.ExecutionTimeMs)

	case models.StateBlocked:
		stage := models.StateCheckInput
		if out.OutputVerdict != nil && !out.OutputVerdict.Passed {
			stage = models.StateCheckOutput
		}
		reason := ""
		if v, ok := out.Blocked(); ok {
			reason = v.Reason
		}
		status.Error = &models.RunError{Kind: models.KindModerationBlocked, Stage: stage, Cause: reason}
		g.logger.InfoContext(ctx, "内容被拦截", "stage", stage, "reason", reason)

	case models.StateFailed:
		status.Error = out.Failure
		if status.Error == nil {
			status.Error = &models.RunError{Kind: models.KindInternal}
		}
		g.logger.WarnContext(ctx, "流程执行失败", "kind", status.Error.Kind, "stage", status.Error.Stage, "cause", status.Error.Cause)

	default:
		// 图正常结束却没有进入终态
		return failedStatus(out.RunID, fmt.Errorf("run ended in non-terminal state %s", out.State))
	}

	return status
}

func failedStatus(runID string, err error) models.RunStatus {
	return models.RunStatus{
		RunID: runID,
		State: models.StateFailed,
		Error: models.RunErrorFrom(err),
	}
}

func (g *RAGQueryGraph) checkInput(ctx context.Context, event models.RunEvent) (models.RunEvent, error) {
	ctx, cancel := g.stageContext(ctx, models.StateCheckInput)
	defer cancel()

	verdict, err := g.moderation.Check(ctx, event.Query, models.DirectionInput)
	if err != nil {
		return event.WithFailure(models.NewStageError(models.StateCheckInput, err)), nil
	}

	event = event.WithInputVerdict(verdict)
	if !verdict.Passed {
		return event.WithState(models.StateBlocked), nil
	}
	return event.WithState(models.StateRetrieve), nil
}

func (g *RAGQueryGraph) retrieve(ctx context.Context, event models.RunEvent) (models.RunEvent, error) {
	ctx, cancel := g.stageContext(ctx, models.StateRetrieve)
	defer cancel()

	passages, err := g.retrieval.Retrieve(ctx, event.Query)
	if err != nil {
		return event.WithFailure(models.NewStageError(models.StateRetrieve, err)), nil
	}

	g.logger.DebugContext(ctx, "检索完成", "passages", len(passages))
	return event.WithRetrieval(passages, g.retrieval.FormatContext(passages)).WithState(models.StateGenerate), nil
}

func (g *RAGQueryGraph) generate(ctx context.Context, event models.RunEvent) (models.RunEvent, error) {
	ctx, cancel := g.stageContext(ctx, models.StateGenerate)
	defer cancel()

	gen, err := g.generation.Generate(ctx, event.Query, event.Context)
	if err != nil {
		return event.WithFailure(models.NewStageError(models.StateGenerate, err)), nil
	}

	g.logger.DebugContext(ctx, "生成完成", "tokens_used", gen.TokensUsed, "stop_reason", gen.StopReason)
	return event.WithGeneration(gen).WithState(models.StateCheckOutput), nil
}

func (g *RAGQueryGraph) checkOutput(ctx context.Context, event models.RunEvent) (models.RunEvent, error) {
	ctx, cancel := g.stageContext(ctx, models.StateCheckOutput)
	defer cancel()

	answer := ""
	if event.Generation != nil {
		answer = event.Generation.Answer
	}

	verdict, err := g.moderation.Check(ctx, answer, models.DirectionOutput)
	if err != nil {
		return event.WithFailure(models.NewStageError(models.StateCheckOutput, err)), nil
	}

	event = event.WithOutputVerdict(verdict)
	if !verdict.Passed {
		return event.WithState(models.StateBlocked), nil
	}
	return event.WithState(models.StateCacheWrite), nil
}

// cacheWrite 组装最终结果并写入缓存，写入失败只记录日志
func (g *RAGQueryGraph) cacheWrite(ctx context.Context, event models.RunEvent) (models.RunEvent, error) {
	result := models.PipelineResult{
		Query:           event.Query,
		Sources:         g.retrieval.Sources(event.Passages),
		ExecutionTimeMs: g.elapsedMs(event.StartTime),
	}
	if event.Generation != nil {
		result.Answer = event.Generation.Answer
	}

	if g.cache != nil {
		ctx, cancel := g.stageContext(ctx, models.StateCacheWrite)
		defer cancel()

		if !g.cache.Put(ctx, event.Query, &result, 0) {
			g.logger.DebugContext(ctx, "结果未写入缓存")
		}
	}

	return event.WithResult(result).WithState(models.StateSucceeded), nil
}

func (g *RAGQueryGraph) stageContext(ctx context.Context, stage models.RunState) (context.Context, context.CancelFunc) {
	ctx = logger.InjectFields(ctx, logger.Fields{"stage": string(stage)})
	if g.stageTimeout > 0 {
		return context.WithTimeout(ctx, g.stageTimeout)
	}
	return ctx, func() {}
}

func (g *RAGQueryGraph) elapsedMs(start time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	return g.now().Sub(start).Milliseconds()
}
