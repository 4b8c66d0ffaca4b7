// Package app 负责装配应用依赖
package app

import (
	"context"
	"fmt"

	"storyscape/internal/application/generation"
	"storyscape/internal/application/graph"
	"storyscape/internal/application/retrieval"
	"storyscape/internal/config"
	"storyscape/internal/infrastructure/embedding"
	"storyscape/internal/infrastructure/imagegen"
	"storyscape/internal/infrastructure/llm"
	"storyscape/internal/infrastructure/messaging"
	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/infrastructure/persistence/postgres"
	"storyscape/internal/infrastructure/persistence/redis"
	"storyscape/pkg/logger"
)

// Core 应用核心依赖：客户端、仓储与应用服务。
// API 服务与工作进程共用同一套装配。
type Core struct {
	Config *config.Config

	PG     *postgres.Client
	Redis  *redis.Client
	Milvus *milvus.Client

	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	Producer    *messaging.Producer

	Stories     *postgres.StoryRepository
	Segments    *postgres.SegmentRepository
	Connections *postgres.ConnectionRepository
	Users       *postgres.UserRepository
	Tx          *postgres.TxManager

	Embedder *embedding.Client
	Vector   *milvus.Repository

	Graph        *graph.Service
	Retriever    *retrieval.Retriever
	Augmenter    *retrieval.Augmenter
	Orchestrator *generation.Orchestrator
}

// NewCore 按配置装配核心依赖，返回清理函数
func NewCore(ctx context.Context, cfg *config.Config) (*Core, func(), error) {
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		_ = pgClient.Close()
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		_ = redisClient.Close()
		_ = pgClient.Close()
		return nil, nil, fmt.Errorf("failed to init milvus: %w", err)
	}

	cleanup := func() {
		if err := milvusClient.Close(); err != nil {
			logger.Error(ctx, "failed to close milvus client", err)
		}
		if err := redisClient.Close(); err != nil {
			logger.Error(ctx, "failed to close redis client", err)
		}
		if err := pgClient.Close(); err != nil {
			logger.Error(ctx, "failed to close postgres client", err)
		}
	}

	// 仓储层
	storyRepo := postgres.NewStoryRepository(pgClient)
	segmentRepo := postgres.NewSegmentRepository(pgClient)
	connectionRepo := postgres.NewConnectionRepository(pgClient)
	userRepo := postgres.NewUserRepository(pgClient)
	txManager := postgres.NewTxManager(pgClient)

	cache := redis.NewCache(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))

	// 外部协作方
	embedder := embedding.NewClient(&cfg.Embedding)
	vectorRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	textGen := llm.NewGenerator(llm.NewFactory(&cfg.TextModel))
	imageGen := imagegen.NewClient(&cfg.ImageModel)

	// 应用服务
	graphSvc := graph.NewService(storyRepo, segmentRepo, connectionRepo, txManager, cache)
	retriever := retrieval.NewRetriever(embedder, vectorRepo, segmentRepo)
	augmenter := retrieval.NewAugmenter(cfg.Retrieval.MaxContextSegments, cfg.Retrieval.MaxRunesPerSegment)
	orchestrator := generation.NewOrchestrator(
		storyRepo,
		segmentRepo,
		graphSvc,
		retriever,
		augmenter,
		embedder,
		vectorRepo,
		textGen,
		imageGen,
		producer,
		txManager,
		cache,
		cfg.Retrieval.TopK,
	)

	return &Core{
		Config:       cfg,
		PG:           pgClient,
		Redis:        redisClient,
		Milvus:       milvusClient,
		Cache:        cache,
		RateLimiter:  rateLimiter,
		Producer:     producer,
		Stories:      storyRepo,
		Segments:     segmentRepo,
		Connections:  connectionRepo,
		Users:        userRepo,
		Tx:           txManager,
		Embedder:     embedder,
		Vector:       vectorRepo,
		Graph:        graphSvc,
		Retriever:    retriever,
		Augmenter:    augmenter,
		Orchestrator: orchestrator,
	}, cleanup, nil
}
