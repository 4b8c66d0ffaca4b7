// Package main 生成工作进程入口（gen-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storyscape/internal/app"
	"storyscape/internal/config"
	"storyscape/internal/infrastructure/messaging"
	"storyscape/pkg/logger"
	"storyscape/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "gen-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	core, cleanup, err := app.NewCore(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	consumerName := hostnameConsumerName()

	// 文本生成消费者
	textConsumer := newConsumer(core, cfg, messaging.StreamSegmentGen, messaging.ConsumerGroupGenWorker, consumerName)
	textConsumer.RegisterHandler(messaging.TypeSegmentGen, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.SegmentGenMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return core.Orchestrator.RunTextGeneration(ctx, payload.StoryID, payload.SegmentID)
	})

	// 图像生成消费者
	imageConsumer := newConsumer(core, cfg, messaging.StreamImageGen, messaging.ConsumerGroupImageWorker, consumerName)
	imageConsumer.RegisterHandler(messaging.TypeImageGen, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.ImageGenMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return core.Orchestrator.RunImageGeneration(ctx, payload.StoryID, payload.SegmentID, payload.Style)
	})

	// 重嵌入消费者
	reembedConsumer := newConsumer(core, cfg, messaging.StreamReembed, messaging.ConsumerGroupGenWorker, consumerName)
	reembedConsumer.RegisterHandler(messaging.TypeReembed, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.ReembedMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return core.Orchestrator.RunReembed(ctx, payload.StoryID, payload.SegmentID)
	})

	consumers := []*messaging.Consumer{textConsumer, imageConsumer, reembedConsumer}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info("gen-worker started", "consumer", consumerName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("gen-worker shutting down")
	for _, c := range consumers {
		c.Stop()
	}
}

func newConsumer(core *app.Core, cfg *config.Config, stream messaging.Stream, group messaging.ConsumerGroup, name string) *messaging.Consumer {
	return messaging.NewConsumer(core.Redis.Redis(), messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group,
		ConsumerName:  name,
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
