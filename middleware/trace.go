// Package middleware 提供 gin 中间件：链路上下文、异常恢复、请求日志、
// 限流与 CORS。中间件只依赖 logger / trace / errcode 等基础包，
// 由 server 与 gateway 按配置装配。
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-fabric/trace"
)

const (
	// TraceIDKey gin.Context 中的 trace id key
	TraceIDKey = "trace_id"
	// SpanIDKey gin.Context 中的 span id key
	SpanIDKey = "span_id"
)

// TraceConfig 链路中间件配置
type TraceConfig struct {
	// EnableResponseHeader 是否将 trace/span id 写回响应头（默认 true）
	EnableResponseHeader bool
}

// DefaultTraceConfig 默认链路配置
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		EnableResponseHeader: true,
	}
}

// Trace 创建链路中间件
//
// 功能：
//  1. 从请求头延续上游链路，或开启新的根 trace
//  2. 注入 request context（供日志与出站调用使用）
//  3. 注入 gin.Context，Handler 可直接取用
//  4. 可选：将 trace/span id 写回响应头
//
// 用法：
//
//	engine.Use(middleware.Trace(middleware.DefaultTraceConfig()))
func Trace(cfg TraceConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, tc := trace.EnsureInbound(c.Request.Context(), c.Request.Header)
		c.Request = c.Request.WithContext(ctx)

		c.Set(TraceIDKey, tc.TraceID)
		c.Set(SpanIDKey, tc.SpanID)

		if cfg.EnableResponseHeader {
			c.Writer.Header().Set(trace.HeaderTraceID, tc.TraceID)
			c.Writer.Header().Set(trace.HeaderSpanID, tc.SpanID)
		}

		c.Next()
	}
}

// GetTraceID 从 gin.Context 获取 trace id（便捷方法）
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
