package dto

import (
	"time"

	"storyscape/internal/domain/entity"
)

// CreateSegmentRequest 创建片段请求
type CreateSegmentRequest struct {
	ParentID   string `json:"parent_id" binding:"required,uuid"`
	UserPrompt string `json:"user_prompt" binding:"required,max=4000"`
}

// EditSegmentRequest 编辑片段文本请求
type EditSegmentRequest struct {
	ContentText string `json:"content_text" binding:"required"`
}

// RequestImageRequest 图像生成请求，style 可选
type RequestImageRequest struct {
	Style string `json:"style" binding:"omitempty,max=64"`
}

// SegmentResponse 片段响应
type SegmentResponse struct {
	ID               string    `json:"id"`
	StoryID          string    `json:"story_id"`
	UserPrompt       string    `json:"user_prompt"`
	ContentText      string    `json:"content_text"`
	ImageRef         string    `json:"image_ref,omitempty"`
	Status           string    `json:"status"`
	FailReason       string    `json:"fail_reason,omitempty"`
	EmbeddingPresent bool      `json:"embedding_present"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToSegmentDTO 实体转片段 DTO
func ToSegmentDTO(segment *entity.Segment) *SegmentResponse {
	return &SegmentResponse{
		ID:               segment.ID,
		StoryID:          segment.StoryID,
		UserPrompt:       segment.UserPrompt,
		ContentText:      segment.ContentText,
		ImageRef:         segment.ImageRef,
		Status:           string(segment.Status),
		FailReason:       segment.FailReason,
		EmbeddingPresent: segment.EmbeddingPresent(),
		CreatedAt:        segment.CreatedAt,
		UpdatedAt:        segment.UpdatedAt,
	}
}

// ToSegmentDTOs 实体列表转片段 DTO 列表
func ToSegmentDTOs(segments []*entity.Segment) []*SegmentResponse {
	out := make([]*SegmentResponse, 0, len(segments))
	for _, s := range segments {
		out = append(out, ToSegmentDTO(s))
	}
	return out
}
