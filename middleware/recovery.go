package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/logger"
)

// Recovery 捕获 Handler panic（结构化日志）
// 替代 gin.Recovery()，用统一的 Logger 组件记录 panic 日志
//
// 功能：
//   - 捕获 Handler 中的 panic，防止进程崩溃
//   - 记录完整堆栈信息
//   - 返回统一的 500 响应，不向客户端暴露堆栈
func Recovery() gin.HandlerFunc {
	log := logger.GetLogger("http")

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())

				log.ErrorCtx(c.Request.Context(), "Panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", stack),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal Server Error",
					"message": fmt.Sprintf("%v", err),
				})
			}
		}()

		c.Next()
	}
}
