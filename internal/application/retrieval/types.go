// Package retrieval 提供故事内语义检索与提示词增强
package retrieval

import (
	"context"

	"storyscape/internal/domain/entity"
	"storyscape/internal/infrastructure/persistence/milvus"
)

const (
	// MinTopK 检索数量下限
	MinTopK = 3
	// MaxTopK 检索数量上限
	MaxTopK = 5
)

// Embedder 嵌入服务端口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex 向量索引端口
type VectorIndex interface {
	Upsert(ctx context.Context, sv *milvus.SegmentVector) error
	Search(ctx context.Context, storyID string, queryVector []float32, topK int) ([]*milvus.Match, error)
	DeleteSegment(ctx context.Context, storyID, segmentID string) error
	DropStory(ctx context.Context, storyID string) error
}

// RetrievedSegment 检索命中的片段
type RetrievedSegment struct {
	Segment  *entity.Segment
	Distance float64
}

// ClampTopK 将检索数量收敛到允许区间
func ClampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
