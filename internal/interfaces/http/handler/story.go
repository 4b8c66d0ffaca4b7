package handler

import (
	"storyscape/internal/application/generation"
	"storyscape/internal/application/graph"
	"storyscape/internal/domain/entity"
	"storyscape/internal/domain/repository"
	"storyscape/internal/interfaces/http/dto"
	"storyscape/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StoryHandler 故事处理器
type StoryHandler struct {
	orchestrator *generation.Orchestrator
	graphSvc     *graph.Service
	storyRepo    repository.StoryRepository
}

// NewStoryHandler 创建故事处理器
func NewStoryHandler(
	orchestrator *generation.Orchestrator,
	graphSvc *graph.Service,
	storyRepo repository.StoryRepository,
) *StoryHandler {
	return &StoryHandler{
		orchestrator: orchestrator,
		graphSvc:     graphSvc,
		storyRepo:    storyRepo,
	}
}

// CreateStory 创建故事
// @Summary 创建故事及根片段，根片段异步生成
// @Tags Story
// @Accept json
// @Produce json
// @Param body body dto.CreateStoryRequest true "故事信息"
// @Success 201 {object} dto.Response[dto.CreateStoryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/stories [post]
func (h *StoryHandler) CreateStory(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	story, root, err := h.orchestrator.CreateStory(ctx, currentUserID(c), req.Title, req.InitialPrompt)
	if err != nil {
		logger.Error(ctx, "failed to create story", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Created(c, &dto.CreateStoryResponse{
		Story:       dto.ToStoryDTO(story),
		RootSegment: dto.ToSegmentDTO(root),
	})
}

// ListStories 故事列表
// @Summary 当前用户的故事列表
// @Tags Story
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.StoryResponse]
// @Router /v1/stories [get]
func (h *StoryHandler) ListStories(c *gin.Context) {
	ctx := c.Request.Context()

	pagination := bindPagination(c)
	result, err := h.storyRepo.ListByOwner(ctx, currentUserID(c), pagination)
	if err != nil {
		logger.Error(ctx, "failed to list stories", err)
		dto.FromAppError(c, err)
		return
	}

	dto.SuccessWithPage(c, dto.ToStoryDTOs(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetStory 故事详情
// @Summary 故事详情
// @Tags Story
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 200 {object} dto.Response[dto.StoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid} [get]
func (h *StoryHandler) GetStory(c *gin.Context) {
	story, err := h.loadOwnedStory(c, c.Param("sid"))
	if err != nil || story == nil {
		return
	}

	dto.Success(c, dto.ToStoryDTO(story))
}

// DeleteStory 删除故事
// @Summary 删除故事及其片段、连接与向量
// @Tags Story
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid} [delete]
func (h *StoryHandler) DeleteStory(c *gin.Context) {
	ctx := c.Request.Context()

	story, err := h.loadOwnedStory(c, c.Param("sid"))
	if err != nil || story == nil {
		return
	}

	if err := h.orchestrator.DeleteStory(ctx, story.ID); err != nil {
		logger.Error(ctx, "failed to delete story", err, "story_id", story.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.NoContent(c)
}

// GetStoryGraph 故事图谱导出
// @Summary 导出故事的全部片段与连接
// @Tags Story
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 200 {object} dto.Response[dto.StoryGraphResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid}/graph [get]
func (h *StoryHandler) GetStoryGraph(c *gin.Context) {
	ctx := c.Request.Context()

	story, err := h.loadOwnedStory(c, c.Param("sid"))
	if err != nil || story == nil {
		return
	}

	dump, err := h.graphSvc.DumpStory(ctx, story.ID)
	if err != nil {
		logger.Error(ctx, "failed to dump story graph", err, "story_id", story.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, &dto.StoryGraphResponse{
		StoryID:     dump.StoryID,
		Segments:    dto.ToSegmentDTOs(dump.Segments),
		Connections: dto.ToConnectionDTOs(dump.Connections),
	})
}

// ReembedStory 重嵌入故事
// @Summary 为故事全部可检索片段入队重嵌入
// @Tags Story
// @Produce json
// @Param sid path string true "故事 ID"
// @Success 202 {object} dto.Response[dto.ReembedResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid}/reembed [post]
func (h *StoryHandler) ReembedStory(c *gin.Context) {
	ctx := c.Request.Context()

	story, err := h.loadOwnedStory(c, c.Param("sid"))
	if err != nil || story == nil {
		return
	}

	enqueued, err := h.orchestrator.ReembedStory(ctx, story.ID)
	if err != nil {
		logger.Error(ctx, "failed to enqueue story reembed", err, "story_id", story.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Accepted(c, &dto.ReembedResponse{
		StoryID:  story.ID,
		Enqueued: enqueued,
	})
}

// loadOwnedStory 加载故事并校验归属，失败时已写入响应
func (h *StoryHandler) loadOwnedStory(c *gin.Context, storyID string) (*entity.Story, error) {
	ctx := c.Request.Context()

	story, err := h.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		logger.Error(ctx, "failed to get story", err, "story_id", storyID)
		dto.FromAppError(c, err)
		return nil, err
	}
	// 归属不符按不存在处理，避免泄露故事 ID
	if story == nil || story.OwnerID != currentUserID(c) {
		dto.NotFound(c, "story not found")
		return nil, nil
	}
	return story, nil
}
