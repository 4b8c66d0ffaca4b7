// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"storyscape/internal/domain/entity"
)

// ConnectionRepository 连接（有向边）仓储接口
type ConnectionRepository interface {
	// Create 创建连接
	Create(ctx context.Context, conn *entity.Connection) error

	// ListByStory 获取故事的全部连接（按创建时间升序）
	ListByStory(ctx context.Context, storyID string) ([]*entity.Connection, error)

	// ListFrom 获取从指定片段出发的连接
	ListFrom(ctx context.Context, fromSegmentID string) ([]*entity.Connection, error)

	// ListTo 获取指向指定片段的连接
	ListTo(ctx context.Context, toSegmentID string) ([]*entity.Connection, error)
}
