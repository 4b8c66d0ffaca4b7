// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"storyscape/internal/domain/entity"
)

// SegmentRepository 片段仓储接口
type SegmentRepository interface {
	// Create 创建片段
	Create(ctx context.Context, segment *entity.Segment) error

	// GetByID 根据 ID 获取片段，未找到返回 nil
	GetByID(ctx context.Context, id string) (*entity.Segment, error)

	// GetManyByIDs 批量获取片段
	GetManyByIDs(ctx context.Context, ids []string) ([]*entity.Segment, error)

	// ListByStory 获取故事的全部片段（按创建时间升序）
	ListByStory(ctx context.Context, storyID string) ([]*entity.Segment, error)

	// ListRetrievableByStory 获取故事中已可检索（text_ready 及之后）的片段
	ListRetrievableByStory(ctx context.Context, storyID string) ([]*entity.Segment, error)

	// ClaimStatus 原子地将片段状态从 from 之一推进到 to。
	// 返回 false 表示片段已不在期望状态（重复投递等），调用方应按无操作处理。
	ClaimStatus(ctx context.Context, id string, from []entity.SegmentStatus, to entity.SegmentStatus) (bool, error)

	// SetContent 持久化生成文本
	SetContent(ctx context.Context, id, content string) error

	// UpdateText 更新片段文本（手工编辑）
	UpdateText(ctx context.Context, id, content string) error

	// MarkEmbedded 记录向量已写入向量索引
	MarkEmbedded(ctx context.Context, id string, at time.Time) error

	// SetImageRef 持久化图像引用
	SetImageRef(ctx context.Context, id, imageRef string) error

	// MarkFailed 将片段置为终态 failed 并记录原因
	MarkFailed(ctx context.Context, id, reason string) error
}
