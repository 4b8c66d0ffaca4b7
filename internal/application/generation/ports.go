// Package generation 编排片段文本/图像生成流水线
package generation

import "context"

// TextGenerator 文本生成模型端口。单次调用，生成器对提示词结构不感知。
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageGenerator 图像生成模型端口。style 为可选的画风提示，空串表示默认画风。
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, style string) (string, error)
}
