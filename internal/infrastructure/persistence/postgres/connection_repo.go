// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"storyscape/internal/domain/entity"
)

// ConnectionRepository 连接仓储实现
type ConnectionRepository struct {
	client *Client
}

// NewConnectionRepository 创建连接仓储
func NewConnectionRepository(client *Client) *ConnectionRepository {
	return &ConnectionRepository{client: client}
}

// Create 创建连接
func (r *ConnectionRepository) Create(ctx context.Context, conn *entity.Connection) error {
	ctx, span := tracer.Start(ctx, "postgres.ConnectionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(conn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// ListByStory 获取故事的全部连接
func (r *ConnectionRepository) ListByStory(ctx context.Context, storyID string) ([]*entity.Connection, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConnectionRepository.ListByStory")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var conns []*entity.Connection
	if err := db.Where("story_id = ?", storyID).
		Order("created_at ASC").
		Find(&conns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// ListFrom 获取从指定片段出发的连接
func (r *ConnectionRepository) ListFrom(ctx context.Context, fromSegmentID string) ([]*entity.Connection, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConnectionRepository.ListFrom")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var conns []*entity.Connection
	if err := db.Where("from_segment_id = ?", fromSegmentID).
		Order("created_at ASC").
		Find(&conns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list outgoing connections: %w", err)
	}
	return conns, nil
}

// ListTo 获取指向指定片段的连接
func (r *ConnectionRepository) ListTo(ctx context.Context, toSegmentID string) ([]*entity.Connection, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConnectionRepository.ListTo")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var conns []*entity.Connection
	if err := db.Where("to_segment_id = ?", toSegmentID).
		Order("created_at ASC").
		Find(&conns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list incoming connections: %w", err)
	}
	return conns, nil
}
