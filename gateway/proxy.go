package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/breaker"
	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/registry"
	"github.com/KOMKZ/go-fabric/router"
	"github.com/KOMKZ/go-fabric/trace"
)

// upstreamResult 上游响应的缓冲副本
// 经过熔断器的 interface{} 通道传递，由网关统一写回
type upstreamResult struct {
	statusCode int
	header     http.Header
	body       []byte
	instanceID string
}

// proxy 上游转发器：路由解析 + 链路注入 + 熔断包装的 HTTP 调用
type proxy struct {
	caller   string
	resolver *router.Router
	breakers *breaker.Manager
	client   *http.Client
	timeout  time.Duration
	logger   *logger.CtxZapLogger
}

func newProxy(cfg *Config, resolver *router.Router, breakers *breaker.Manager) *proxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32

	return &proxy{
		caller:   cfg.Caller,
		resolver: resolver,
		breakers: breakers,
		client: &http.Client{
			Transport: transport,
			// 不跟随上游重定向，原样透传给调用方
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: cfg.UpstreamTimeout,
		logger:  logger.GetLogger("gateway"),
	}
}

// forward 将请求经熔断器转发到目标服务的一个 HEALTHY 实例
// 解析失败、上游 5xx、超时都计为熔断失败并触发结构化降级
func (p *proxy) forward(c *gin.Context, r *route) {
	ctx := c.Request.Context()

	// 请求体只能读一次，预先缓冲供 Execute 使用
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    errcode.ErrUpstreamUnavailable.Code(),
				"message": "failed to read request body",
			})
			return
		}
	}

	result, err := p.breakers.Execute(ctx, &breaker.Request{
		Caller:  p.caller,
		Target:  r.service,
		Timeout: p.timeout,
		Execute: func(ctx context.Context) (interface{}, error) {
			return p.callUpstream(ctx, c, r, body)
		},
	})
	if err != nil {
		p.writeFallback(c, r, err)
		return
	}

	up, ok := result.(*upstreamResult)
	if !ok {
		p.writeFallback(c, r, fmt.Errorf("unexpected upstream result type %T", result))
		return
	}
	p.writeUpstream(c, up)
}

// callUpstream 解析实例并发起一次上游调用
func (p *proxy) callUpstream(ctx context.Context, c *gin.Context, r *route, body []byte) (interface{}, error) {
	decision, err := p.resolver.Resolve(ctx, r.service, r.policy)
	if err != nil {
		return nil, err
	}
	inst := decision.Instance

	upstreamURL := "http://" + inst.GetAddress() + r.rewritePath(c.Request.URL.Path)
	if raw := c.Request.URL.RawQuery; raw != "" {
		upstreamURL += "?" + raw
	}

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, c.Request.Header)
	// 每跳重新铸造 span，X-Parent-Span-ID 指向本跳
	trace.Outbound(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.classifyError(ctx, inst, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// 5xx 视为实例故障，计入熔断统计
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errcode.ErrUpstreamUnavailable.WithMsgf(
			"instance %s returned %d", inst.InstanceID, resp.StatusCode)
	}

	return &upstreamResult{
		statusCode: resp.StatusCode,
		header:     resp.Header.Clone(),
		body:       respBody,
		instanceID: inst.InstanceID,
	}, nil
}

func (p *proxy) classifyError(ctx context.Context, inst *registry.Instance, err error) error {
	if ctx.Err() != nil {
		return errcode.ErrCallTimeout.Wrap(err)
	}
	return errcode.ErrUpstreamUnavailable.WithMsgf(
		"instance %s unreachable", inst.InstanceID).Wrap(err)
}

// writeUpstream 将缓冲的上游响应原样写回
func (p *proxy) writeUpstream(c *gin.Context, up *upstreamResult) {
	copyHeader(c.Writer.Header(), up.header)
	c.Writer.Header().Set("X-Upstream-Instance", up.instanceID)
	c.Data(up.statusCode, up.header.Get("Content-Type"), up.body)
}

// writeFallback 结构化降级响应（503）
func (p *proxy) writeFallback(c *gin.Context, r *route, err error) {
	p.logger.WarnCtx(c.Request.Context(), "上游调用降级",
		zap.String("service", r.service),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))

	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":    errcode.ErrUpstreamUnavailable.Code(),
		"message": errcode.ErrUpstreamUnavailable.Message(),
		"service": r.service,
	})
}

// hopByHopHeaders 不向上游透传的逐跳头
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		if hopByHopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
