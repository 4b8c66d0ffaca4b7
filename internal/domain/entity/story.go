// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Story 故事实体，是所有片段与连接的所有权根
type Story struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID       string    `json:"owner_id" gorm:"type:uuid;index;not null"`
	Title         string    `json:"title" gorm:"type:varchar(200);not null"`
	InitialPrompt string    `json:"initial_prompt" gorm:"type:text;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Story) TableName() string {
	return "stories"
}

// NewStory 创建新故事
func NewStory(ownerID, title, initialPrompt string) *Story {
	now := time.Now()
	return &Story{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         title,
		InitialPrompt: initialPrompt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
