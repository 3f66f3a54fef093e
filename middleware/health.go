package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-fabric/health"
)

// HealthHandler 健康检查 HTTP Handler
type HealthHandler struct {
	aggregator *health.Aggregator
}

// NewHealthHandler 创建健康检查 Handler
func NewHealthHandler(aggregator *health.Aggregator) *HealthHandler {
	return &HealthHandler{aggregator: aggregator}
}

// Handle 完整健康检查
// GET /health
func (h *HealthHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := h.aggregator.Check(c.Request.Context())

		// 降级状态仍返回 200，在响应体中标识
		statusCode := http.StatusOK
		if response.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}

// HandleLiveness K8s Liveness Probe
// 只检查进程本身存活，不检查外部依赖
func (h *HealthHandler) HandleLiveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
		})
	}
}

// HandleReadiness K8s Readiness Probe
// 检查所有依赖项，只有完全健康才返回 200
func (h *HealthHandler) HandleReadiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := h.aggregator.Check(c.Request.Context())

		statusCode := http.StatusOK
		if response.Status != health.StatusHealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status": response.Status,
		})
	}
}

// RegisterHealthRoutes 注册健康检查路由（便捷方法）
func RegisterHealthRoutes(router gin.IRouter, aggregator *health.Aggregator) {
	if aggregator == nil {
		return
	}

	handler := NewHealthHandler(aggregator)

	router.GET("/health", handler.Handle())
	router.GET("/health/liveness", handler.HandleLiveness())
	router.GET("/health/readiness", handler.HandleReadiness())
}
