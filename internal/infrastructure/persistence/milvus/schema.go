// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionSegments 故事片段向量集合
	CollectionSegments = "segments"
)

// SegmentsSchema 片段 Collection Schema。
// created_at 为片段创建时间（unix 微秒），用于距离相同时的确定性排序。
func SegmentsSchema(dimension int) *entity.Schema {
	dim := strconv.Itoa(dimension)
	return &entity.Schema{
		CollectionName: CollectionSegments,
		Description:    "Story segment embeddings for semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": dim,
				},
			},
			{
				Name:     "story_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// SegmentVector 片段向量数据结构
type SegmentVector struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	StoryID     string    `json:"story_id"`
	CreatedAt   int64     `json:"created_at"`
	TextContent string    `json:"text_content"`
}

// PartitionName 生成故事分区名称（Milvus 分区名不允许连字符）
func PartitionName(storyID string) string {
	return "story_" + strings.ReplaceAll(storyID, "-", "_")
}
