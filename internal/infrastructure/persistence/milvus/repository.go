// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 片段向量仓储
type Repository struct {
	client    *Client
	dimension int
}

// NewRepository 创建片段向量仓储
func NewRepository(client *Client, dimension int) *Repository {
	return &Repository{client: client, dimension: dimension}
}

// Match 向量检索命中
type Match struct {
	SegmentID   string
	Distance    float64
	CreatedAt   int64
	TextContent string
}

// EnsureCollection 确保片段集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionSegments)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.createCollection(ctx); err != nil {
			return err
		}
		if err := r.createIndex(ctx); err != nil {
			return err
		}
	}

	return r.client.LoadCollection(ctx, CollectionSegments)
}

func (r *Repository) createCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", CollectionSegments)))
	defer span.End()

	schema := SegmentsSchema(r.dimension)
	schema.CollectionName = r.client.CollectionName(CollectionSegments)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (r *Repository) createIndex(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", CollectionSegments)))
	defer span.End()

	collName := r.client.CollectionName(CollectionSegments)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// ensurePartition 确保故事分区存在
func (r *Repository) ensurePartition(ctx context.Context, collName, partitionName string) error {
	has, err := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		if err := r.client.milvus.CreatePartition(ctx, collName, partitionName); err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}
	return nil
}

// Upsert 写入片段向量。同一主键先删后插，保证重嵌入后只保留最新向量。
func (r *Repository) Upsert(ctx context.Context, sv *SegmentVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("story_id", sv.StoryID),
			attribute.String("segment_id", sv.ID),
		))
	defer span.End()

	if len(sv.Vector) != r.dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(sv.Vector), r.dimension)
	}

	collName := r.client.CollectionName(CollectionSegments)
	partitionName := PartitionName(sv.StoryID)

	if err := r.ensurePartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return err
	}

	filter := fmt.Sprintf(`id == "%s"`, sv.ID)
	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete stale vector: %w", err)
	}

	idCol := entity.NewColumnVarChar("id", []string{sv.ID})
	vectorCol := entity.NewColumnFloatVector("vector", r.dimension, [][]float32{sv.Vector})
	storyCol := entity.NewColumnVarChar("story_id", []string{sv.StoryID})
	createdCol := entity.NewColumnInt64("created_at", []int64{sv.CreatedAt})
	textCol := entity.NewColumnVarChar("text_content", []string{sv.TextContent})

	if _, err := r.client.milvus.Insert(ctx, collName, partitionName,
		idCol, vectorCol, storyCol, createdCol, textCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert vector: %w", err)
	}
	return nil
}

// Search 在故事分区内做余弦近邻检索。
// 分区尚未创建（故事没有已嵌入片段）时返回空结果。
// 结果按距离升序排列，距离相同按创建时间升序。
func (r *Repository) Search(ctx context.Context, storyID string, queryVector []float32, topK int) ([]*Match, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("story_id", storyID),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionSegments)
	partitionName := PartitionName(storyID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []*Match{}, nil
	}

	filter := fmt.Sprintf(`story_id == "%s"`, storyID)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id", "created_at", "text_content"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var matches []*Match
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			// COSINE 下 score 为相似度，换算为距离
			m := &Match{
				Distance: 1 - float64(result.Scores[i]),
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				m.SegmentID = idCol.Data()[i]
			}
			if createdCol, ok := result.Fields.GetColumn("created_at").(*entity.ColumnInt64); ok {
				m.CreatedAt = createdCol.Data()[i]
			}
			if textCol, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				m.TextContent = textCol.Data()[i]
			}

			matches = append(matches, m)
		}
	}

	matches = sortMatches(matches, topK)

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// sortMatches 按距离升序排列命中，距离相同按创建时间升序，截断到 topK
func sortMatches(matches []*Match, topK int) []*Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].CreatedAt < matches[j].CreatedAt
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// DeleteSegment 删除单个片段向量
func (r *Repository) DeleteSegment(ctx context.Context, storyID, segmentID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteSegment",
		trace.WithAttributes(attribute.String("segment_id", segmentID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionSegments)
	partitionName := PartitionName(storyID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`id == "%s"`, segmentID)
	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

// DropStory 删除故事的全部向量及其分区
func (r *Repository) DropStory(ctx context.Context, storyID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DropStory",
		trace.WithAttributes(attribute.String("story_id", storyID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionSegments)
	partitionName := PartitionName(storyID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`story_id == "%s"`, storyID)
	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete story vectors: %w", err)
	}

	if err := r.client.milvus.DropPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}
