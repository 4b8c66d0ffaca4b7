// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Connection 有向边：ToSegmentID 续写自 FromSegmentID。
// 创建后不可变，仅随故事级联删除。
type Connection struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	StoryID       string    `json:"story_id" gorm:"type:uuid;index;not null"`
	FromSegmentID string    `json:"from_segment_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_connections_from_to"`
	ToSegmentID   string    `json:"to_segment_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_connections_from_to"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Connection) TableName() string {
	return "connections"
}

// NewConnection 创建连接
func NewConnection(storyID, fromID, toID string) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		StoryID:       storyID,
		FromSegmentID: fromID,
		ToSegmentID:   toID,
		CreatedAt:     time.Now(),
	}
}
