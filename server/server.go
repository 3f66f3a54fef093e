// Package server 实现注册中心的 HTTP API。
// 对外提供实例注册、注销、心跳续约与服务发现四个操作，
// 以及存储层健康检查端点。由 cmd 层装配并托管生命周期。
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/health"
	"github.com/KOMKZ/go-fabric/httpx"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/middleware"
	"github.com/KOMKZ/go-fabric/registry"
)

// Server 注册中心 HTTP 服务
type Server struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	handler    *registryHandler
	logger     *logger.CtxZapLogger
}

// NewServer 创建注册中心服务
func NewServer(config Config, store registry.Store, monitor *registry.Monitor) (*Server, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	if monitor == nil {
		return nil, errors.New("registry monitor is required")
	}

	s := &Server{
		config:  config,
		handler: &registryHandler{store: store, monitor: monitor},
		logger:  logger.GetLogger("server"),
	}
	s.engine = s.buildEngine(store)
	s.httpServer = &http.Server{
		Addr:         config.Listen,
		Handler:      s.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) buildEngine(store registry.Store) *gin.Engine {
	gin.SetMode(s.config.Mode)
	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.Trace(middleware.DefaultTraceConfig()))
	engine.Use(middleware.RequestLogWithConfig(s.config.RequestLog))
	engine.Use(httpx.ErrorLoggingMiddleware(s.config.ErrorLogging))

	if s.config.EnableCORS {
		engine.Use(middleware.CORS())
	}
	if s.config.RateLimit.Enable {
		cfg := middleware.DefaultRateLimitConfig()
		cfg.Rate = s.config.RateLimit.Rate
		cfg.Burst = s.config.RateLimit.Burst
		cfg.SkipPaths = s.config.RequestLog.SkipPaths
		engine.Use(middleware.RateLimit(cfg))
	}

	engine.NoRoute(httpx.NoRouteHandler())
	engine.NoMethod(httpx.NoMethodHandler())

	// 健康检查：存储层连通性决定 readiness
	aggregator := health.NewAggregator(0)
	aggregator.SetMetadata("component", "registry-server")
	aggregator.Register(&health.CheckerFunc{
		CheckerName: "registry_store",
		CheckFn: func(ctx context.Context) error {
			_, err := store.Snapshot(ctx)
			return err
		},
	})
	middleware.RegisterHealthRoutes(engine, aggregator)

	g := engine.Group("/registry")
	{
		g.POST("/instances", s.handler.register)
		g.DELETE("/instances/:service/:id", s.handler.deregister)
		g.POST("/heartbeat", s.handler.heartbeat)
		g.GET("/services/:service", s.handler.lookup)
	}

	return engine
}

// Engine 返回底层 gin engine（测试与二次挂载使用）
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start 启动 HTTP 服务（阻塞直到退出）
// 正常关闭时返回 nil
func (s *Server) Start() error {
	s.logger.Info("✅ 注册中心服务启动", zap.String("listen", s.config.Listen))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭，等待存量请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("注册中心服务关闭中")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("✅ 注册中心服务已关闭")
	return nil
}
