package httpx

import (
	"github.com/gin-gonic/gin"
)

// Validatable 请求对象的校验接口
type Validatable interface {
	Validate() error
}

// HandlerFunc 泛型 Handler 函数签名
// Req: 请求类型（支持 form/json/uri tag）
// Resp: 响应类型
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

// Wrap 包装 Handler，自动处理解析、校验、响应
// 将业务逻辑从 HTTP 细节中解耦
func Wrap[Req any, Resp any](handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := Parse(c, &req); err != nil {
			BadRequestJson(c, err)
			return
		}

		// 请求对象实现 Validatable 时执行参数校验
		if validatableReq, ok := any(&req).(Validatable); ok {
			if err := validatableReq.Validate(); err != nil {
				HandleError(c, err)
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, err)
			return
		}

		OkJson(c, resp)
	}
}
