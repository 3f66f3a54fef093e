// Package gateway 实现健康感知的入口网关。
// 按静态路由表做最长前缀匹配，把请求解析到目标服务的 HEALTHY 实例，
// 出站调用经熔断器保护，失败时返回结构化降级响应。
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/breaker"
	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/middleware"
	"github.com/KOMKZ/go-fabric/router"
)

// Gateway 入口网关
type Gateway struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	table      *routeTable
	proxy      *proxy
	logger     *logger.CtxZapLogger
}

// NewGateway 创建网关
func NewGateway(config Config, resolver *router.Router, breakers *breaker.Manager) (*Gateway, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, errors.New("router is required")
	}
	if breakers == nil {
		return nil, errors.New("breaker manager is required")
	}

	g := &Gateway{
		config: config,
		table:  newRouteTable(&config),
		proxy:  newProxy(&config, resolver, breakers),
		logger: logger.GetLogger("gateway"),
	}
	g.engine = g.buildEngine()
	g.httpServer = &http.Server{
		Addr:         config.Listen,
		Handler:      g.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return g, nil
}

func (g *Gateway) buildEngine() *gin.Engine {
	gin.SetMode(g.config.Mode)
	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.Trace(middleware.DefaultTraceConfig()))
	engine.Use(middleware.RequestLogWithConfig(g.config.RequestLog))

	if g.config.RateLimit.Enable {
		cfg := middleware.DefaultRateLimitConfig()
		cfg.Rate = g.config.RateLimit.Rate
		cfg.Burst = g.config.RateLimit.Burst
		cfg.KeyFunc = middleware.RateLimitKeyByIP
		engine.Use(middleware.RateLimit(cfg))
	}

	// 路由表是任意前缀 + 任意方法的匹配，不适合 gin 的静态路由树，
	// 全部请求走 NoRoute 统一进入前缀匹配
	engine.NoRoute(g.handle)
	return engine
}

// handle 网关主处理：前缀匹配 → 转发
func (g *Gateway) handle(c *gin.Context) {
	r := g.table.match(c.Request.URL.Path)
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errcode.ErrRouteNotFound.Code(),
			"message": errcode.ErrRouteNotFound.Message(),
		})
		return
	}
	g.proxy.forward(c, r)
}

// Engine 返回底层 gin engine（测试使用）
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// Start 启动网关（阻塞直到退出），正常关闭时返回 nil
func (g *Gateway) Start() error {
	g.logger.Info("✅ 网关启动",
		zap.String("listen", g.config.Listen),
		zap.Int("routes", len(g.config.Routes)))
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (g *Gateway) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("网关关闭中")
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	g.logger.Info("✅ 网关已关闭")
	return nil
}
