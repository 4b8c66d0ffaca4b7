// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishSegmentGen 发布片段文本生成任务
func (p *Producer) PublishSegmentGen(ctx context.Context, task *SegmentGenMessage) (string, error) {
	msg, err := NewMessage(task.SegmentID, TypeSegmentGen, task.StoryID, task.SegmentID, task)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamSegmentGen, msg)
}

// PublishImageGen 发布图像生成任务
func (p *Producer) PublishImageGen(ctx context.Context, task *ImageGenMessage) (string, error) {
	msg, err := NewMessage(task.SegmentID, TypeImageGen, task.StoryID, task.SegmentID, task)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamImageGen, msg)
}

// PublishReembed 发布重嵌入任务
func (p *Producer) PublishReembed(ctx context.Context, task *ReembedMessage) (string, error) {
	msg, err := NewMessage(task.SegmentID, TypeReembed, task.StoryID, task.SegmentID, task)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamReembed, msg)
}

// SegmentGenMessage 片段文本生成任务消息
type SegmentGenMessage struct {
	SegmentID  string `json:"segment_id"`
	StoryID    string `json:"story_id"`
	UserPrompt string `json:"user_prompt"`
}

// ImageGenMessage 图像生成任务消息
type ImageGenMessage struct {
	SegmentID string `json:"segment_id"`
	StoryID   string `json:"story_id"`
	Style     string `json:"style,omitempty"`
}

// ReembedMessage 重嵌入任务消息
type ReembedMessage struct {
	SegmentID string `json:"segment_id"`
	StoryID   string `json:"story_id"`
}
