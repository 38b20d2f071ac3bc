package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/grounded-archive/internal/config"
	"github.com/kirillkom/grounded-archive/internal/core/contract"
	"github.com/kirillkom/grounded-archive/internal/core/persona"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
	"github.com/kirillkom/grounded-archive/internal/core/usecase"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/cache"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/rerank"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/grounded-archive/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Personas  *persona.Registry
	Validator *contract.Validator
	Sessions  *usecase.PersonaSessions
	Retrieval *usecase.RetrievalUseCase
	Answers   *usecase.AnswerUseCase

	// Contracts is nil unless AUDIT_ENABLED is set.
	Contracts *postgres.ContractRepository

	closeFns []func()
}

// New wires the pipeline. pipelineMetrics may be nil, in which case events are dropped.
func New(ctx context.Context, cfg config.Config, pipelineMetrics *metrics.PipelineMetrics) (*App, error) {
	registry, err := persona.Load(cfg.PersonaConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	validator, err := contract.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("init contract validator: %w", err)
	}

	var observer usecase.PipelineObserver = usecase.NopObserver{}
	resilienceCfg := resilience.DefaultConfig()
	if pipelineMetrics != nil {
		observer = pipelineMetrics
		resilienceCfg.OnStateChange = pipelineMetrics.ObserveBreaker
	}

	app := &App{Config: cfg, Personas: registry, Validator: validator}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	var embedder ports.Embedder = ollama.NewEmbedder(ollamaClient, resilience.NewExecutor(resilienceCfg.WithTimeout(cfg.EmbedTimeout)))
	if cfg.EmbedCacheTTL > 0 {
		embedder = cache.NewEmbedder(embedder, cfg.EmbedCacheTTL)
	}
	drafter := ollama.NewDrafter(ollamaClient, resilience.NewExecutor(resilienceCfg.WithTimeout(cfg.DraftTimeout)))
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix).
		WithExecutor(resilience.NewExecutor(resilienceCfg.WithTimeout(cfg.SearchTimeout)))

	var fuser *usecase.Fuser
	if cfg.RerankEnabled {
		reranker := rerank.New(cfg.RerankURL, resilience.NewExecutor(resilienceCfg.WithTimeout(cfg.RerankTimeout)))
		fuser = usecase.NewFuser(reranker, cfg.RerankTimeout, observer)
	}

	app.Sessions = usecase.NewPersonaSessions(cfg.SessionTTL)
	aggregator := usecase.NewAggregator(embedder, vectorDB, cfg.SearchTimeout, observer)
	app.Retrieval = usecase.NewRetrievalUseCase(registry, app.Sessions, aggregator, fuser, usecase.Defaults{
		Namespaces:     cfg.DefaultNamespaces,
		Threshold:      cfg.DefaultThreshold,
		Limit:          cfg.DefaultLimit,
		MinResults:     cfg.DefaultMinResults,
		RerankTopN:     cfg.DefaultRerankTopN,
		SemanticWeight: cfg.DefaultSemanticWeight,
		RerankWeight:   cfg.DefaultRerankWeight,
		MaxChunkChars:  cfg.DefaultMaxChunkChars,
	}, observer)

	var publisher ports.ContractPublisher
	if cfg.AuditEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSContractSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilienceCfg),
		})
		if err != nil {
			return nil, fmt.Errorf("init contract queue: %w", err)
		}
		app.closeFns = append(app.closeFns, queue.Close)
		publisher = queue

		repo, closeDB, err := openContractRepository(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closeFns = append(app.closeFns, closeDB)
		app.Contracts = repo
	}
	app.Answers = usecase.NewAnswerUseCase(app.Retrieval, drafter, validator, publisher, cfg.DraftTimeout, observer)

	slog.Info("pipeline_ready",
		"personas", len(registry.List()),
		"default_persona", string(registry.DefaultKey()),
		"rerank_enabled", cfg.RerankEnabled,
		"audit_enabled", cfg.AuditEnabled,
	)
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Audit is the worker side: it drains published contracts into the audit table.
type Audit struct {
	Queue     *nats.Queue
	Contracts *postgres.ContractRepository

	closeFns []func()
}

func NewAudit(ctx context.Context, cfg config.Config) (*Audit, error) {
	repo, closeDB, err := openContractRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queue, err := nats.New(cfg.NATSURL, cfg.NATSContractSubject)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init contract queue: %w", err)
	}
	return &Audit{
		Queue:     queue,
		Contracts: repo,
		closeFns:  []func(){closeDB, queue.Close},
	}, nil
}

func (a *Audit) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func openContractRepository(ctx context.Context, cfg config.Config) (*postgres.ContractRepository, func(), error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, "grounded-archive")
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewContractRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}
