// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyscape/internal/domain/entity"
)

// StoryRepository 故事仓储接口
type StoryRepository interface {
	// Create 创建故事
	Create(ctx context.Context, story *entity.Story) error

	// GetByID 根据 ID 获取故事，未找到返回 nil
	GetByID(ctx context.Context, id string) (*entity.Story, error)

	// ListByOwner 获取用户的故事列表
	ListByOwner(ctx context.Context, ownerID string, pagination Pagination) (*PagedResult[*entity.Story], error)

	// Delete 删除故事（级联删除片段与连接）
	Delete(ctx context.Context, id string) error
}
