package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"protocol-rag/internal/adapter/cache"
	"protocol-rag/internal/adapter/rag_augur"
	rag_http "protocol-rag/internal/adapter/rag_http"
	"protocol-rag/internal/adapter/rag_http/openapi"
	"protocol-rag/internal/adapter/repository"
	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/config"
	"protocol-rag/internal/infra/httpclient"
	"protocol-rag/internal/usecase"
	"protocol-rag/internal/usecase/compare"
	"protocol-rag/internal/usecase/extract"
	"protocol-rag/internal/usecase/guardrail"
	"protocol-rag/internal/usecase/normalize"
	"protocol-rag/internal/usecase/retrieval"
	"protocol-rag/internal/worker"
)

// Database is what the container needs from the connection pool.
type Database interface {
	repository.DB
	rag_http.Pinger
}

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	ChunkRepo domain.ProtocolChunkRepository
	AuditRepo domain.AuditRepository

	// Usecases
	Retrieval    *retrieval.Engine
	Comparison   *compare.Engine
	Gate         *guardrail.Gate
	Orchestrator usecase.ProtocolOrchestrator

	// Worker
	AuditWorker *worker.AuditWorker

	// HTTP
	Handler   *rag_http.Handler
	Validator echo.MiddlewareFunc

	redis *redis.Client
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(ctx context.Context, cfg *config.Config, db Database, log *slog.Logger) (*ApplicationComponents, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	retrievalCfg := retrievalConfig(cfg)
	if err := retrievalCfg.Validate(); err != nil {
		return nil, err
	}
	compareCfg := compare.Config{
		Threshold:         cfg.Compare.Threshold,
		BreadthFactor:     cfg.Compare.BreadthFactor,
		DefaultMaxResults: cfg.Compare.DefaultMaxResults,
	}
	if err := compareCfg.Validate(); err != nil {
		return nil, err
	}
	guardCfg := guardrail.Config{
		DowngradeThreshold: cfg.Guardrail.DowngradeThreshold,
		ClaimOverlap:       cfg.Guardrail.ClaimOverlap,
		MaxHallucination:   cfg.Guardrail.MaxHallucination,
	}
	if err := guardCfg.Validate(); err != nil {
		return nil, err
	}
	orchCfg := usecase.OrchestratorConfig{
		AnswerLimit:     cfg.Orchestrator.AnswerLimit,
		MaxTokens:       cfg.Orchestrator.MaxTokens,
		PromptVersion:   cfg.Orchestrator.PromptVersion,
		GenerateTimeout: cfg.Orchestrator.GenerateTimeout,
	}
	if err := orchCfg.Validate(); err != nil {
		return nil, err
	}

	// Repositories
	chunkRepo := repository.NewProtocolChunkRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(cfg.Embedder.Timeout)
	generatorHTTP := httpclient.NewPooledClient(cfg.Generator.Timeout)

	// External clients
	embedder := rag_augur.NewOllamaEmbedder(
		cfg.Embedder.URL,
		cfg.Embedder.Model,
		embedderHTTP,
		rate.NewLimiter(rate.Limit(cfg.Embedder.RateLimit), cfg.Embedder.RateBurst),
		log,
	)
	if cfg.Embedder.BatchSize > 0 {
		embedder.BatchSize = cfg.Embedder.BatchSize
	}
	generator := rag_augur.NewOllamaGenerator(cfg.Generator.URL, cfg.Generator.Model, generatorHTTP, log)

	var reranker domain.Reranker
	if cfg.Rerank.Enabled {
		reranker = rag_augur.NewRerankerClient(rag_augur.RerankerConfig{
			BaseURL:  cfg.Rerank.URL,
			Model:    cfg.Rerank.Model,
			TopN:     cfg.Rerank.TopK,
			MinScore: cfg.Rerank.MinScore,
			Timeout:  cfg.Rerank.Timeout,
		}, httpclient.NewPooledClient(cfg.Rerank.Timeout), log)
		log.Info("reranker_enabled",
			slog.String("url", cfg.Rerank.URL),
			slog.String("model", cfg.Rerank.Model),
			slog.Float64("min_score", cfg.Rerank.MinScore))
	}

	retrievalCache, redisClient, err := newCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	// Domain services
	normalizer := normalize.NewNormalizer()
	extractor := extract.NewExtractor()

	auditWorker := worker.NewAuditWorker(auditRepo, worker.AuditWorkerConfig{
		QueueSize:   cfg.Audit.QueueSize,
		MaxAttempts: cfg.Audit.MaxAttempts,
	}, log)

	engine := retrieval.NewEngine(embedder, chunkRepo, retrievalCache, reranker, retrievalCfg, log)
	comparison := compare.NewEngine(normalizer, engine, extractor, compareCfg, log)
	gate := guardrail.NewGate(guardCfg, extractor, auditWorker, log)
	orchestrator := usecase.NewProtocolOrchestrator(
		normalizer, engine, comparison, gate,
		generator, usecase.NewXMLPromptBuilder(),
		orchCfg, log,
	)

	doc, err := openapi.Load(ctx)
	if err != nil {
		return nil, err
	}
	validator, err := openapi.RequestValidator(doc)
	if err != nil {
		return nil, err
	}

	return &ApplicationComponents{
		ChunkRepo:    chunkRepo,
		AuditRepo:    auditRepo,
		Retrieval:    engine,
		Comparison:   comparison,
		Gate:         gate,
		Orchestrator: orchestrator,
		AuditWorker:  auditWorker,
		Handler:      rag_http.NewHandler(orchestrator, db, log),
		Validator:    validator,
		redis:        redisClient,
	}, nil
}

// Close releases clients the container opened. The database pool belongs to the caller.
func (c *ApplicationComponents) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func retrievalConfig(cfg *config.Config) retrieval.Config {
	rc := retrieval.DefaultConfig()
	rc.Threshold = cfg.Retrieval.Threshold
	rc.SearchLimit = cfg.Retrieval.SearchLimit
	rc.MaxVariants = cfg.Retrieval.MaxVariants
	rc.FanOutTimeout = cfg.Retrieval.FanOutTimeout
	if cfg.Retrieval.EmbedMaxAttempts > 0 {
		rc.EmbedMaxAttempts = uint(cfg.Retrieval.EmbedMaxAttempts)
	}
	rc.Rerank = retrieval.RerankConfig{
		Enabled: cfg.Rerank.Enabled,
		TopK:    cfg.Rerank.TopK,
		Timeout: cfg.Rerank.Timeout,
	}
	return rc
}

func newCache(ctx context.Context, cfg config.CacheConfig, log *slog.Logger) (retrieval.Cache, *redis.Client, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// An unreachable cache degrades to misses at lookup time.
			log.Warn("redis_ping_failed", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
		}
		log.Info("retrieval_cache_configured", slog.String("backend", "redis"), slog.Duration("ttl", cfg.TTL))
		return cache.NewRedisCache(client, cfg.TTL, log), client, nil
	case "lru":
		log.Info("retrieval_cache_configured", slog.String("backend", "lru"),
			slog.Int("size", cfg.Size), slog.Duration("ttl", cfg.TTL))
		return cache.NewLRUCache(cfg.Size, cfg.TTL), nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
