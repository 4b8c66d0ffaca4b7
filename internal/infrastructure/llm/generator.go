// Package llm 提供文本生成模型客户端
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	apperrors "storyscape/pkg/errors"
	"storyscape/pkg/metrics"
)

// Generator 文本生成器。模型对提示词结构不感知，单次调用产出完整片段文本。
type Generator struct {
	factory *Factory
	model   string
}

// NewGenerator 创建文本生成器
func NewGenerator(factory *Factory) *Generator {
	return &Generator{
		factory: factory,
		model:   factory.config.Model,
	}
}

// Generate 调用模型生成片段文本
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	chatModel, err := g.factory.Chat(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeModelCallFailed, "text model unavailable")
	}

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}

	start := time.Now()
	out, err := chatModel.Generate(ctx, msgs)
	metrics.ModelCallDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallTotal.WithLabelValues(g.model, "error").Inc()
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, "text generation failed")
	}

	content := strings.TrimSpace(out.Content)
	if content == "" {
		metrics.ModelCallTotal.WithLabelValues(g.model, "error").Inc()
		return "", apperrors.New(apperrors.CodeGenerationFailed, "text model returned empty content")
	}

	metrics.ModelCallTotal.WithLabelValues(g.model, "success").Inc()
	return content, nil
}
