// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storyscape/internal/domain/entity"
)

// SegmentRepository 片段仓储实现
type SegmentRepository struct {
	client *Client
}

// NewSegmentRepository 创建片段仓储
func NewSegmentRepository(client *Client) *SegmentRepository {
	return &SegmentRepository{client: client}
}

// Create 创建片段
func (r *SegmentRepository) Create(ctx context.Context, segment *entity.Segment) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(segment).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create segment: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取片段
func (r *SegmentRepository) GetByID(ctx context.Context, id string) (*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var segment entity.Segment
	if err := db.First(&segment, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &segment, nil
}

// GetManyByIDs 批量获取片段
func (r *SegmentRepository) GetManyByIDs(ctx context.Context, ids []string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.GetManyByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("id IN ?", ids).Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}
	return segments, nil
}

// ListByStory 获取故事的全部片段
func (r *SegmentRepository) ListByStory(ctx context.Context, storyID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.ListByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("story_id = ?", storyID).
		Order("created_at ASC").
		Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return segments, nil
}

// ListRetrievableByStory 获取故事中文本已就绪的片段
func (r *SegmentRepository) ListRetrievableByStory(ctx context.Context, storyID string) ([]*entity.Segment, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.ListRetrievableByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var segments []*entity.Segment
	if err := db.Where("story_id = ? AND status IN ?", storyID, []entity.SegmentStatus{
		entity.SegmentStatusTextReady,
		entity.SegmentStatusGeneratingImage,
		entity.SegmentStatusImageReady,
		entity.SegmentStatusComplete,
	}).Order("created_at ASC").Find(&segments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list retrievable segments: %w", err)
	}
	return segments, nil
}

// ClaimStatus 原子推进片段状态，RowsAffected 为 0 时认领失败
func (r *SegmentRepository) ClaimStatus(ctx context.Context, id string, from []entity.SegmentStatus, to entity.SegmentStatus) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.ClaimStatus")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Segment{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to claim segment status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetContent 持久化生成文本
func (r *SegmentRepository) SetContent(ctx context.Context, id, content string) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.SetContent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Segment{}).Where("id = ?", id).
		Update("content_text", content).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set segment content: %w", err)
	}
	return nil
}

// UpdateText 更新片段文本（手工编辑）
func (r *SegmentRepository) UpdateText(ctx context.Context, id, content string) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.UpdateText")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Segment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"content_text": content,
			"embedded_at":  nil,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update segment text: %w", err)
	}
	return nil
}

// MarkEmbedded 记录向量写入时间
func (r *SegmentRepository) MarkEmbedded(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.MarkEmbedded")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Segment{}).Where("id = ?", id).
		Update("embedded_at", at).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark segment embedded: %w", err)
	}
	return nil
}

// SetImageRef 持久化图像引用
func (r *SegmentRepository) SetImageRef(ctx context.Context, id, imageRef string) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.SetImageRef")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Segment{}).Where("id = ?", id).
		Update("image_ref", imageRef).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set segment image ref: %w", err)
	}
	return nil
}

// MarkFailed 将片段置为失败终态
func (r *SegmentRepository) MarkFailed(ctx context.Context, id, reason string) error {
	ctx, span := tracer.Start(ctx, "postgres.SegmentRepository.MarkFailed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Segment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      entity.SegmentStatusFailed,
			"fail_reason": reason,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark segment failed: %w", err)
	}
	return nil
}
