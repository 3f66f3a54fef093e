package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/logger"
)

// RequestLogConfig HTTP 请求日志配置
type RequestLogConfig struct {
	// SkipPaths 跳过记录的路径列表
	SkipPaths []string `mapstructure:"skip_paths"`
}

// DefaultRequestLogConfig 默认请求日志配置
func DefaultRequestLogConfig() RequestLogConfig {
	return RequestLogConfig{
		SkipPaths: []string{},
	}
}

// RequestLog HTTP 请求日志中间件（结构化日志）
// 替代 gin.Logger()，按状态码自动分级：
// 500+ Error，400+ Warn，其余 Info。trace id 由 Context 自动关联。
//
// 用法：
//
//	engine.Use(middleware.RequestLog())
//	// 或自定义配置
//	cfg := middleware.DefaultRequestLogConfig()
//	cfg.SkipPaths = []string{"/health"}
//	engine.Use(middleware.RequestLogWithConfig(cfg))
func RequestLog() gin.HandlerFunc {
	return RequestLogWithConfig(DefaultRequestLogConfig())
}

// RequestLogWithConfig 创建自定义配置的请求日志中间件
func RequestLogWithConfig(cfg RequestLogConfig) gin.HandlerFunc {
	log := logger.GetLogger("http")

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("body_size", c.Writer.Size()),
		}

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields = append(fields, zap.String("error", errorMessage))
		}

		ctx := c.Request.Context()
		switch {
		case statusCode >= 500:
			log.ErrorCtx(ctx, "HTTP 请求", fields...)
		case statusCode >= 400:
			log.WarnCtx(ctx, "HTTP 请求", fields...)
		default:
			log.InfoCtx(ctx, "HTTP 请求", fields...)
		}
	}
}
