package httpx

import (
	"github.com/gin-gonic/gin"
)

// Parse 自动提取请求参数（path + query + body）
// 支持 uri/form/json tag
func Parse(c *gin.Context, req interface{}) error {
	// 绑定 URI 参数（如 :service）；没有 uri tag 时绑定失败可忽略
	if err := c.ShouldBindUri(req); err != nil {
		_ = err
	}

	// 绑定 Query 参数（form tag）
	if err := c.ShouldBindQuery(req); err != nil {
		_ = err
	}

	// 仅在有请求体时绑定 JSON Body
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			return err
		}
	}

	return nil
}
