package dto

import (
	"time"

	"storyscape/internal/domain/entity"
)

// CreateStoryRequest 创建故事请求
type CreateStoryRequest struct {
	Title         string `json:"title" binding:"required,max=200"`
	InitialPrompt string `json:"initial_prompt" binding:"required,max=4000"`
}

// StoryResponse 故事响应
type StoryResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Title         string    `json:"title"`
	InitialPrompt string    `json:"initial_prompt"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateStoryResponse 创建故事响应，携带已入队生成的根片段
type CreateStoryResponse struct {
	Story       *StoryResponse   `json:"story"`
	RootSegment *SegmentResponse `json:"root_segment"`
}

// StoryGraphResponse 故事图谱导出响应
type StoryGraphResponse struct {
	StoryID     string                `json:"story_id"`
	Segments    []*SegmentResponse    `json:"segments"`
	Connections []*ConnectionResponse `json:"connections"`
}

// ConnectionResponse 连接响应
type ConnectionResponse struct {
	ID            string    `json:"id"`
	StoryID       string    `json:"story_id"`
	FromSegmentID string    `json:"from_segment_id"`
	ToSegmentID   string    `json:"to_segment_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReembedResponse 重嵌入响应
type ReembedResponse struct {
	StoryID  string `json:"story_id"`
	Enqueued int    `json:"enqueued"`
}

// ToStoryDTO 实体转故事 DTO
func ToStoryDTO(story *entity.Story) *StoryResponse {
	return &StoryResponse{
		ID:            story.ID,
		OwnerID:       story.OwnerID,
		Title:         story.Title,
		InitialPrompt: story.InitialPrompt,
		CreatedAt:     story.CreatedAt,
		UpdatedAt:     story.UpdatedAt,
	}
}

// ToStoryDTOs 实体列表转故事 DTO 列表
func ToStoryDTOs(stories []*entity.Story) []*StoryResponse {
	out := make([]*StoryResponse, 0, len(stories))
	for _, s := range stories {
		out = append(out, ToStoryDTO(s))
	}
	return out
}

// ToConnectionDTO 实体转连接 DTO
func ToConnectionDTO(conn *entity.Connection) *ConnectionResponse {
	return &ConnectionResponse{
		ID:            conn.ID,
		StoryID:       conn.StoryID,
		FromSegmentID: conn.FromSegmentID,
		ToSegmentID:   conn.ToSegmentID,
		CreatedAt:     conn.CreatedAt,
	}
}

// ToConnectionDTOs 实体列表转连接 DTO 列表
func ToConnectionDTOs(conns []*entity.Connection) []*ConnectionResponse {
	out := make([]*ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, ToConnectionDTO(c))
	}
	return out
}
