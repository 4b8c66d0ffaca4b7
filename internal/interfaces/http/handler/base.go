package handler

import (
	"strconv"

	"storyscape/internal/domain/repository"

	"github.com/gin-gonic/gin"
)

// currentUserID 获取当前认证用户 ID，认证未启用时归为 anonymous
func currentUserID(c *gin.Context) string {
	userID := c.GetString("user_id")
	if userID == "" {
		return "anonymous"
	}
	return userID
}

// bindPagination 解析分页查询参数
func bindPagination(c *gin.Context) repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NewPagination(page, pageSize)
}
