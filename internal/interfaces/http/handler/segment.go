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

// SegmentHandler 片段处理器
type SegmentHandler struct {
	orchestrator *generation.Orchestrator
	graphSvc     *graph.Service
	storyRepo    repository.StoryRepository
	segmentRepo  repository.SegmentRepository
}

// NewSegmentHandler 创建片段处理器
func NewSegmentHandler(
	orchestrator *generation.Orchestrator,
	graphSvc *graph.Service,
	storyRepo repository.StoryRepository,
	segmentRepo repository.SegmentRepository,
) *SegmentHandler {
	return &SegmentHandler{
		orchestrator: orchestrator,
		graphSvc:     graphSvc,
		storyRepo:    storyRepo,
		segmentRepo:  segmentRepo,
	}
}

// CreateSegment 创建片段
// @Summary 在父片段下创建分支片段，文本异步生成
// @Tags Segment
// @Accept json
// @Produce json
// @Param sid path string true "故事 ID"
// @Param body body dto.CreateSegmentRequest true "片段信息"
// @Success 202 {object} dto.Response[dto.SegmentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{sid}/segments [post]
func (h *SegmentHandler) CreateSegment(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	storyID := c.Param("sid")
	story, err := h.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		logger.Error(ctx, "failed to get story", err, "story_id", storyID)
		dto.FromAppError(c, err)
		return
	}
	if story == nil || story.OwnerID != currentUserID(c) {
		dto.NotFound(c, "story not found")
		return
	}

	segment, err := h.orchestrator.CreateSegment(ctx, storyID, req.ParentID, req.UserPrompt)
	if err != nil {
		logger.Error(ctx, "failed to create segment", err, "story_id", storyID)
		dto.FromAppError(c, err)
		return
	}

	dto.Accepted(c, dto.ToSegmentDTO(segment))
}

// GetSegment 片段详情
// @Summary 片段详情（状态、文本、图像引用、向量是否在索引中）
// @Tags Segment
// @Produce json
// @Param segid path string true "片段 ID"
// @Success 200 {object} dto.Response[dto.SegmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/segments/{segid} [get]
func (h *SegmentHandler) GetSegment(c *gin.Context) {
	segment := h.loadOwnedSegment(c, c.Param("segid"))
	if segment == nil {
		return
	}

	dto.Success(c, dto.ToSegmentDTO(segment))
}

// EditSegment 编辑片段文本
// @Summary 人工修改片段文本，向量失效并异步重嵌入
// @Tags Segment
// @Accept json
// @Produce json
// @Param segid path string true "片段 ID"
// @Param body body dto.EditSegmentRequest true "新文本"
// @Success 200 {object} dto.Response[dto.SegmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/segments/{segid} [patch]
func (h *SegmentHandler) EditSegment(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.EditSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	segment := h.loadOwnedSegment(c, c.Param("segid"))
	if segment == nil {
		return
	}

	updated, err := h.orchestrator.EditSegmentText(ctx, segment.ID, req.ContentText)
	if err != nil {
		logger.Error(ctx, "failed to edit segment text", err, "segment_id", segment.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToSegmentDTO(updated))
}

// RequestImage 发起图像生成
// @Summary 为片段发起异步图像生成，文本未就绪时返回 409
// @Tags Segment
// @Accept json
// @Produce json
// @Param segid path string true "片段 ID"
// @Param body body dto.RequestImageRequest false "画风（可选）"
// @Success 202 {object} dto.Response[dto.SegmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/segments/{segid}/image [post]
func (h *SegmentHandler) RequestImage(c *gin.Context) {
	ctx := c.Request.Context()

	// 请求体可省略
	var req dto.RequestImageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	segment := h.loadOwnedSegment(c, c.Param("segid"))
	if segment == nil {
		return
	}

	if err := h.orchestrator.RequestImage(ctx, segment.ID, req.Style); err != nil {
		logger.Error(ctx, "failed to request image generation", err, "segment_id", segment.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Accepted(c, dto.ToSegmentDTO(segment))
}

// GetChildren 片段的直接后继
// @Summary 片段的直接后继列表（按连接创建顺序）
// @Tags Segment
// @Produce json
// @Param segid path string true "片段 ID"
// @Success 200 {object} dto.Response[[]dto.SegmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/segments/{segid}/children [get]
func (h *SegmentHandler) GetChildren(c *gin.Context) {
	ctx := c.Request.Context()

	segment := h.loadOwnedSegment(c, c.Param("segid"))
	if segment == nil {
		return
	}

	children, err := h.graphSvc.ChildrenOf(ctx, segment.ID)
	if err != nil {
		logger.Error(ctx, "failed to list segment children", err, "segment_id", segment.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToSegmentDTOs(children))
}

// GetPath 根到片段的路径
// @Summary 从故事根到该片段的路径（根在前）
// @Tags Segment
// @Produce json
// @Param segid path string true "片段 ID"
// @Success 200 {object} dto.Response[[]dto.SegmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/segments/{segid}/path [get]
func (h *SegmentHandler) GetPath(c *gin.Context) {
	ctx := c.Request.Context()

	segment := h.loadOwnedSegment(c, c.Param("segid"))
	if segment == nil {
		return
	}

	path, err := h.graphSvc.PathToRoot(ctx, segment.ID)
	if err != nil {
		logger.Error(ctx, "failed to resolve path to root", err, "segment_id", segment.ID)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToSegmentDTOs(path))
}

// loadOwnedSegment 加载片段并校验所属故事归属，失败时已写入响应
func (h *SegmentHandler) loadOwnedSegment(c *gin.Context, segmentID string) *entity.Segment {
	ctx := c.Request.Context()

	segment, err := h.segmentRepo.GetByID(ctx, segmentID)
	if err != nil {
		logger.Error(ctx, "failed to get segment", err, "segment_id", segmentID)
		dto.FromAppError(c, err)
		return nil
	}
	if segment == nil {
		dto.NotFound(c, "segment not found")
		return nil
	}

	story, err := h.storyRepo.GetByID(ctx, segment.StoryID)
	if err != nil {
		logger.Error(ctx, "failed to get story", err, "story_id", segment.StoryID)
		dto.FromAppError(c, err)
		return nil
	}
	if story == nil || story.OwnerID != currentUserID(c) {
		dto.NotFound(c, "segment not found")
		return nil
	}
	return segment
}
