package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流中间件配置
type RateLimitConfig struct {
	// Rate 每秒补充的令牌数（默认 100）
	Rate float64

	// Burst 桶容量（默认 200）
	Burst int

	// KeyFunc 限流维度的资源键生成函数（默认：method:path）
	KeyFunc func(*gin.Context) string

	// RateLimitHandler 被限流时的响应（默认返回 429）
	RateLimitHandler func(*gin.Context)

	// SkipPaths 跳过限流的路径列表
	SkipPaths []string

	// MaxIdle 空闲限流器回收阈值（默认 10 分钟未命中即回收）
	MaxIdle time.Duration
}

// DefaultRateLimitConfig 默认限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:  100,
		Burst: 200,
		KeyFunc: func(c *gin.Context) string {
			return fmt.Sprintf("%s:%s", c.Request.Method, c.Request.URL.Path)
		},
		RateLimitHandler: func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "请求过于频繁，请稍后再试",
			})
		},
		SkipPaths: []string{},
		MaxIdle:   10 * time.Minute,
	}
}

// keyedLimiter 单个资源键的令牌桶
type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit 创建令牌桶限流中间件
//
// 功能：
//  1. 按资源键（默认 method:path）各自维护一个令牌桶
//  2. 被限流的请求返回 429
//  3. 空闲资源键的限流器定期回收，防止按 IP 限流时无界增长
//
// 用法：
//
//	engine.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//
//	// 按客户端 IP 限流
//	cfg := middleware.DefaultRateLimitConfig()
//	cfg.KeyFunc = middleware.RateLimitKeyByIP
//	engine.Use(middleware.RateLimit(cfg))
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Rate <= 0 {
		cfg.Rate = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 200
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultRateLimitConfig().KeyFunc
	}
	if cfg.RateLimitHandler == nil {
		cfg.RateLimitHandler = DefaultRateLimitConfig().RateLimitHandler
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 10 * time.Minute
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	var (
		mu          sync.Mutex
		limiters    = make(map[string]*keyedLimiter)
		lastCleanup = time.Now()
	)

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()

		// 顺带回收空闲限流器，避免额外的后台 goroutine
		if now.Sub(lastCleanup) > cfg.MaxIdle {
			for k, kl := range limiters {
				if now.Sub(kl.lastSeen) > cfg.MaxIdle {
					delete(limiters, k)
				}
			}
			lastCleanup = now
		}

		kl, ok := limiters[key]
		if !ok {
			kl = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)}
			limiters[key] = kl
		}
		kl.lastSeen = now

		return kl.limiter.Allow()
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if !allow(cfg.KeyFunc(c)) {
			cfg.RateLimitHandler(c)
			return
		}

		c.Next()
	}
}

// RateLimitKeyByIP 按客户端 IP 生成资源键
func RateLimitKeyByIP(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitKeyByPathAndIP 按路径 + IP 组合生成资源键
func RateLimitKeyByPathAndIP(c *gin.Context) string {
	return fmt.Sprintf("%s:%s:%s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
}
