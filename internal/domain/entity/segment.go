// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// SegmentStatus 片段生成状态
type SegmentStatus string

const (
	SegmentStatusPending         SegmentStatus = "pending"
	SegmentStatusGeneratingText  SegmentStatus = "generating_text"
	SegmentStatusTextReady       SegmentStatus = "text_ready"
	SegmentStatusGeneratingImage SegmentStatus = "generating_image"
	SegmentStatusImageReady      SegmentStatus = "image_ready"
	SegmentStatusComplete        SegmentStatus = "complete"
	SegmentStatusFailed          SegmentStatus = "failed"
)

// statusRank 状态在生命周期中的序号，用于“晚于/早于”判断
var statusRank = map[SegmentStatus]int{
	SegmentStatusPending:         0,
	SegmentStatusGeneratingText:  1,
	SegmentStatusTextReady:       2,
	SegmentStatusGeneratingImage: 3,
	SegmentStatusImageReady:      4,
	SegmentStatusComplete:        5,
}

// AtLeast 判断状态是否已到达（或越过）给定状态。failed 视为未到达。
func (s SegmentStatus) AtLeast(other SegmentStatus) bool {
	r1, ok1 := statusRank[s]
	r2, ok2 := statusRank[other]
	return ok1 && ok2 && r1 >= r2
}

// Segment 故事片段：分支故事图的一个节点
type Segment struct {
	ID          string        `json:"id" gorm:"type:uuid;primaryKey"`
	StoryID     string        `json:"story_id" gorm:"type:uuid;index;not null"`
	UserPrompt  string        `json:"user_prompt" gorm:"type:text"`
	ContentText string        `json:"content_text" gorm:"type:text"`
	ImageRef    string        `json:"image_ref,omitempty" gorm:"type:varchar(512)"`
	Status      SegmentStatus `json:"status" gorm:"type:varchar(32);index;default:'pending'"`
	FailReason  string        `json:"fail_reason,omitempty" gorm:"type:text"`
	// EmbeddedAt 为空表示向量索引中尚无该片段的向量
	EmbeddedAt *time.Time `json:"embedded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Segment) TableName() string {
	return "segments"
}

// NewSegment 创建待生成的片段
func NewSegment(storyID, userPrompt string) *Segment {
	now := time.Now()
	return &Segment{
		ID:         uuid.NewString(),
		StoryID:    storyID,
		UserPrompt: userPrompt,
		Status:     SegmentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EmbeddingPresent 片段向量是否已写入向量索引
func (s *Segment) EmbeddingPresent() bool {
	return s.EmbeddedAt != nil
}

// Retrievable 片段是否可被检索（text_ready 及之后）
func (s *Segment) Retrievable() bool {
	return s.Status.AtLeast(SegmentStatusTextReady)
}

// Editable 片段文本是否可编辑（非生成中、非 pending）
func (s *Segment) Editable() bool {
	switch s.Status {
	case SegmentStatusTextReady, SegmentStatusImageReady, SegmentStatusComplete:
		return true
	default:
		return false
	}
}

// ImageRequestable 是否允许发起图像生成
func (s *Segment) ImageRequestable() bool {
	return s.Status == SegmentStatusTextReady || s.Status == SegmentStatusComplete
}
