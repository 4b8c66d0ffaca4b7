// Package router 提供 HTTP 路由配置
package router

import (
	"storyscape/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	authHandler *handler.AuthHandler,
	storyHandler *handler.StoryHandler,
	segmentHandler *handler.SegmentHandler,
) {
	// 认证管理
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// 故事管理
	stories := v1.Group("/stories")
	{
		stories.GET("", storyHandler.ListStories)
		stories.POST("", storyHandler.CreateStory)
		stories.GET("/:sid", storyHandler.GetStory)
		stories.DELETE("/:sid", storyHandler.DeleteStory)

		// 故事图谱
		stories.GET("/:sid/graph", storyHandler.GetStoryGraph)

		// 故事下的片段
		stories.POST("/:sid/segments", segmentHandler.CreateSegment)

		// 重嵌入
		stories.POST("/:sid/reembed", storyHandler.ReembedStory)
	}

	// 片段管理
	segments := v1.Group("/segments")
	{
		segments.GET("/:segid", segmentHandler.GetSegment)
		segments.PATCH("/:segid", segmentHandler.EditSegment)
		segments.POST("/:segid/image", segmentHandler.RequestImage)
		segments.GET("/:segid/children", segmentHandler.GetChildren)
		segments.GET("/:segid/path", segmentHandler.GetPath)
	}
}
