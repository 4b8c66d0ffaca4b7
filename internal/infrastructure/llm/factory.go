// Package llm 提供文本生成模型客户端
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"storyscape/internal/config"
)

// Factory 管理 ChatModel 客户端实例
type Factory struct {
	config *config.ModelConfig
	chat   model.BaseChatModel
	mu     sync.Mutex
}

// NewFactory 创建文本模型工厂
func NewFactory(cfg *config.ModelConfig) *Factory {
	return &Factory{config: cfg}
}

// Chat 获取 ChatModel 客户端（惰性初始化）
func (f *Factory) Chat(ctx context.Context) (model.BaseChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.chat != nil {
		return f.chat, nil
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  f.config.APIKey,
		BaseURL: f.config.Endpoint,
		Model:   f.config.Model,
		Timeout: f.config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	f.chat = chatModel
	return f.chat, nil
}
