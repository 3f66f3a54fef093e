// Package httpx 提供 HTTP 请求/响应的统一处理
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
)

// Response 统一响应格式
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// OkJson 成功响应
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// CreatedJson 201 创建成功响应
func CreatedJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// BadRequestJson 400 错误响应
func BadRequestJson(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Code: 400,
		Msg:  err.Error(),
	})
}

// NotFoundJson 404 错误响应
func NotFoundJson(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{
		Code: 404,
		Msg:  msg,
	})
}

// InternalErrorJson 500 错误响应
func InternalErrorJson(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code: 500,
		Msg:  msg,
	})
}

// NoRouteHandler 404 路由不存在处理器
// 注册到 engine.NoRoute()，返回统一的 JSON 响应格式
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code: 404,
			Msg:  "路由不存在: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// NoMethodHandler 405 方法不允许处理器
func NoMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{
			Code: 405,
			Msg:  "方法不允许: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// HandleError 按错误类型返回不同状态码
//
// LayeredError 返回其携带的 HTTP 状态码、错误码与消息；
// 其余错误统一 500，避免泄漏内部信息。
// 是否记录业务错误日志由 ErrorLoggingMiddleware 注入的配置决定。
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	ctx := c.Request.Context()
	cfg := getErrorLoggingConfig(c)

	var layeredErr *errcode.LayeredError
	if errors.As(err, &layeredErr) {
		if shouldLogError(cfg, layeredErr) {
			fields := []zap.Field{
				zap.Int("error_code", layeredErr.Code()),
				zap.String("error_msg", layeredErr.Message()),
			}
			if cfg.FullErrorChain {
				fields = append(fields,
					zap.String("error_chain", layeredErr.String()),
					zap.Error(err),
				)
			}

			log := logger.GetLogger("httpx")
			switch cfg.LogLevel {
			case "warn":
				log.WarnCtx(ctx, "业务错误", fields...)
			case "info":
				log.InfoCtx(ctx, "业务错误", fields...)
			default:
				log.ErrorCtx(ctx, "业务错误", fields...)
			}
		}

		c.JSON(layeredErr.HTTPStatus(), Response{
			Code: layeredErr.Code(),
			Msg:  layeredErr.Message(),
			Data: layeredErr.Data(),
		})
		return
	}

	// 未知错误统一 500
	if cfg.Enable {
		logger.GetLogger("httpx").ErrorCtx(ctx, "未知错误",
			zap.Error(err),
		)
	}
	InternalErrorJson(c, err.Error())
}

// shouldLogError 根据配置决定是否记录
func shouldLogError(cfg errorLoggingConfigInternal, err *errcode.LayeredError) bool {
	if !cfg.Enable {
		return false
	}
	if cfg.IgnoreStatusMap[err.HTTPStatus()] {
		return false
	}
	return true
}
