package handler

import (
	"context"
	"time"

	"storyscape/internal/infrastructure/persistence/milvus"
	"storyscape/internal/infrastructure/persistence/postgres"
	"storyscape/internal/infrastructure/persistence/redis"
	"storyscape/pkg/logger"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	pg      *postgres.Client
	redis   *redis.Client
	milvus  *milvus.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client) *HealthHandler {
	return &HealthHandler{
		version: version,
		pg:      pg,
		redis:   redisClient,
		milvus:  milvusClient,
	}
}

// Health 基础健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Live 存活探针
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(200, gin.H{"status": "alive"})
}

// Ready 就绪探针：逐个检查下游依赖
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	checks["postgres"] = h.check(ctx, "postgres", func(ctx context.Context) error {
		if h.pg == nil {
			return nil
		}
		return h.pg.HealthCheck(ctx)
	}, &healthy)

	checks["redis"] = h.check(ctx, "redis", func(ctx context.Context) error {
		if h.redis == nil {
			return nil
		}
		return h.redis.HealthCheck(ctx)
	}, &healthy)

	checks["milvus"] = h.check(ctx, "milvus", func(ctx context.Context) error {
		if h.milvus == nil {
			return nil
		}
		return h.milvus.HealthCheck(ctx)
	}, &healthy)

	status := 200
	result := "ready"
	if !healthy {
		status = 503
		result = "not ready"
	}

	c.JSON(status, gin.H{
		"status": result,
		"checks": checks,
	})
}

func (h *HealthHandler) check(ctx context.Context, name string, fn func(context.Context) error, healthy *bool) string {
	if err := fn(ctx); err != nil {
		logger.Warn(ctx, "readiness check failed", "dependency", name, "error", err.Error())
		*healthy = false
		return "down: " + err.Error()
	}
	return "up"
}
