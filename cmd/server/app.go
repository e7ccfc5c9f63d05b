package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"rag-gateway/configs"
	"rag-gateway/internal/app/gateway"
	"rag-gateway/internal/domain/services"
	"rag-gateway/internal/eino/callbacks"
	"rag-gateway/internal/eino/components"
	"rag-gateway/internal/eino/flows"
	"rag-gateway/internal/eino/nodes"
	"rag-gateway/internal/infrastructure/events"
	"rag-gateway/internal/infrastructure/guardrail"
	"rag-gateway/internal/infrastructure/runtime/local"
	temporalrt "rag-gateway/internal/infrastructure/runtime/temporal"
	"rag-gateway/internal/infrastructure/stores"
	"rag-gateway/internal/infrastructure/telemetry"
	"rag-gateway/pkg/logger"
)

// application 进程内装配好的全部组件
type application struct {
	config  *configs.Config
	logger  logger.Logger
	cache   *nodes.CacheStore
	graph   *flows.RAGQueryGraph
	runtime services.Runtime
	gateway *gateway.Gateway
	metrics *callbacks.MetricsHandler

	temporal client.Client
	closers  []func(context.Context) error
}

// loadConfig 加载配置并初始化日志
func loadConfig(ctx context.Context) (*configs.Config, logger.Logger, error) {
	earlyLogger := logger.Default()

	config, err := configs.Load(ctx)
	if err != nil {
		return nil, earlyLogger, fmt.Errorf("配置加载失败: %w", err)
	}

	appLogger := initializeLogger(config.Logging)
	appLogger.InfoContext(ctx, "配置加载成功", "config", config.Summary())
	return config, appLogger, nil
}

// initializeLogger 初始化日志服务
func initializeLogger(config configs.LoggingConfig) logger.Logger {
	loggerConfig := logger.Config{
		Level:  logger.ParseLevel(config.Level),
		Format: config.Format,
		Output: config.Output,
	}
	if config.Output == "file" {
		loggerConfig.FilePath = config.FilePath
	}
	return logger.New(loggerConfig)
}

// initializeApplication 按配置装配流水线、运行时和网关。
// withRuntime 为 false 时只装配流水线，供 worker 使用。
func initializeApplication(ctx context.Context, config *configs.Config, log logger.Logger, withRuntime bool) (*application, error) {
	app := &application{config: config, logger: log}

	// 1. 缓存
	repo, closeRepo, err := stores.NewCacheRepositoryFactory(log).CreateCacheRepository(ctx, &config.Cache)
	if err != nil {
		return nil, fmt.Errorf("缓存初始化失败: %w", err)
	}
	app.addCloser(func(context.Context) error { return closeRepo() })
	app.cache = nodes.NewCacheStore(repo, config.Cache.TTL(), log, nodes.WithCacheEnabled(config.Cache.Enabled))

	// 2. Eino 组件
	graph, err := app.initializeEinoComponents(ctx)
	if err != nil {
		_ = app.close(ctx)
		return nil, fmt.Errorf("Eino 组件初始化失败: %w", err)
	}
	app.graph = graph

	if !withRuntime {
		return app, nil
	}

	// 3. 编排运行时与网关
	if err := app.initializeRuntime(ctx); err != nil {
		_ = app.close(ctx)
		return nil, fmt.Errorf("编排运行时初始化失败: %w", err)
	}

	app.gateway = gateway.New(app.cache, app.runtime, gateway.Options{
		MaxQueryLength: config.Gateway.MaxQueryLength,
		WaitTimeout:    config.Gateway.WaitTimeout,
		PollInterval:   config.Gateway.PollInterval,
	}, log, gateway.WithRecorder(app.metrics))

	log.InfoContext(ctx, "应用组件初始化完成", "runtime", config.Runtime.Provider)
	return app, nil
}

// initializeEinoComponents 初始化 Eino 组件并构建查询流程
func (a *application) initializeEinoComponents(ctx context.Context) (*flows.RAGQueryGraph, error) {
	einoCfg := &a.config.Eino
	log := a.logger

	var embedder embedding.Embedder
	if einoCfg.Retriever.Provider == "chromem" && einoCfg.Embedder.APIKey == "" {
		log.InfoContext(ctx, "未配置 Embedder，chromem 使用默认向量函数")
	} else {
		log.InfoContext(ctx, "正在初始化 Embedder",
			"provider", einoCfg.Embedder.Provider,
			"model", einoCfg.Embedder.Model)
		var err error
		embedder, err = components.NewEmbedder(ctx, &einoCfg.Embedder)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初始化失败: %w", err)
		}
	}

	log.InfoContext(ctx, "正在初始化 Retriever",
		"provider", einoCfg.Retriever.Provider,
		"collection", einoCfg.Retriever.Collection)
	retriever, err := components.NewRetriever(ctx, &einoCfg.Retriever, embedder, einoCfg.Pipeline.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("Retriever 初始化失败: %w", err)
	}

	log.InfoContext(ctx, "正在初始化 Generator",
		"provider", einoCfg.Generator.Provider,
		"model", einoCfg.Generator.Model)
	model, err := components.NewGenerator(ctx, &einoCfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("Generator 初始化失败: %w", err)
	}

	policy, err := guardrail.NewPolicyGuardrail(&einoCfg.Guardrail)
	if err != nil {
		return nil, fmt.Errorf("Guardrail 初始化失败: %w", err)
	}
	id, ver := policy.Identity()
	log.InfoContext(ctx, "Guardrail 初始化成功", "guardrail_id", id, "guardrail_version", ver)

	// 回调
	var tp trace.TracerProvider
	if einoCfg.Callbacks.Tracing.Enabled {
		provider, err := telemetry.NewTracerProvider(ctx, &einoCfg.Callbacks.Tracing, version)
		if err != nil {
			return nil, fmt.Errorf("TracerProvider 初始化失败: %w", err)
		}
		a.addCloser(provider.Shutdown)
		tp = provider
		log.InfoContext(ctx, "链路追踪已启用", "endpoint", einoCfg.Callbacks.Tracing.Endpoint, "protocol", einoCfg.Callbacks.Tracing.Protocol)
	}
	factory := callbacks.NewFactory(&einoCfg.Callbacks, log, tp)
	a.metrics = factory.Metrics()

	// 运行事件
	var publisher services.RunEventPublisher = services.NopPublisher{}
	if a.config.Events.NATS.Enabled {
		p, err := events.Connect(a.config.Events.NATS.URL, a.config.Events.NATS.SubjectPrefix)
		if err != nil {
			log.WarnContext(ctx, "NATS 连接失败，运行事件将不会发布", "url", a.config.Events.NATS.URL, "error", err)
		} else {
			publisher = p
			a.addCloser(func(context.Context) error { return p.Close() })
			log.InfoContext(ctx, "NATS 事件发布已启用", "url", a.config.Events.NATS.URL)
		}
	}

	graph := flows.NewRAGQueryGraph(
		nodes.NewModerationGate(policy),
		nodes.NewRetrievalStage(retriever, einoCfg.Pipeline.MaxResults, nodes.MetadataKeys{
			SourceURI: einoCfg.Retriever.SourceURIKey,
			Title:     einoCfg.Retriever.TitleKey,
		}),
		nodes.NewGenerationStage(model, einoCfg.Generator.MaxTokens, einoCfg.Generator.Temperature),
		a.cache,
		log,
		flows.WithStageTimeout(einoCfg.Pipeline.StageTimeout),
		flows.WithPublisher(publisher),
		flows.WithCallbacks(factory.CreateHandlers()...),
	)

	if _, err := graph.Compile(ctx); err != nil {
		return nil, fmt.Errorf("Query Graph 编译失败: %w", err)
	}
	log.InfoContext(ctx, "Query Graph 编译成功")

	return graph, nil
}

// initializeRuntime 按配置创建本地或 Temporal 运行时
func (a *application) initializeRuntime(ctx context.Context) error {
	cfg := a.config.Runtime

	switch cfg.Provider {
	case "temporal":
		c, err := a.dialTemporal(ctx)
		if err != nil {
			return err
		}
		a.runtime = temporalrt.NewRuntime(c, temporalrt.Options{
			TaskQueue:       cfg.Temporal.TaskQueue,
			RunTimeout:      cfg.RunTimeout,
			ActivityTimeout: cfg.Temporal.ActivityTimeout,
		}, a.logger)

	default:
		rt := local.New(a.graph, local.Options{
			RunTimeout: cfg.RunTimeout,
			Retention:  cfg.Retention,
		}, a.logger)
		a.runtime = rt
		a.addCloser(rt.Shutdown)
	}
	return nil
}

// dialTemporal 连接 Temporal，连接在 close 时释放
func (a *application) dialTemporal(ctx context.Context) (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}

	cfg := a.config.Runtime.Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(a.logger.SlogLogger()),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	a.logger.InfoContext(ctx, "temporal client connected", "host", cfg.HostPort, "namespace", cfg.Namespace)

	a.temporal = c
	a.addCloser(func(context.Context) error { c.Close(); return nil })
	return c, nil
}

func (a *application) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close 按初始化的逆序释放资源
func (a *application) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
