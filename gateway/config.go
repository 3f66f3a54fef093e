package gateway

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KOMKZ/go-fabric/middleware"
	"github.com/KOMKZ/go-fabric/router"
)

// Config 网关配置
type Config struct {
	// Listen 监听地址，例如 ":8080"
	Listen string `mapstructure:"listen"`

	// Mode gin 运行模式：debug/release/test
	Mode string `mapstructure:"mode"`

	// Caller 熔断统计中的调用方标识
	Caller string `mapstructure:"caller"`

	// DefaultPolicy 未指定策略的路由使用的负载均衡策略
	DefaultPolicy string `mapstructure:"default_policy"`

	// UpstreamTimeout 上游调用超时
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Routes 静态路由表，path_prefix 最长前缀优先
	Routes []RouteConfig `mapstructure:"routes"`

	// RateLimit 入口限流
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// RequestLog 请求日志
	RequestLog middleware.RequestLogConfig `mapstructure:"request_log"`
}

// RouteConfig 一条静态路由
type RouteConfig struct {
	// PathPrefix 匹配的路径前缀，必须以 / 开头
	PathPrefix string `mapstructure:"path_prefix"`

	// Service 目标逻辑服务名
	Service string `mapstructure:"service"`

	// Policy 该路由的负载均衡策略（可选，默认用全局 DefaultPolicy）
	Policy string `mapstructure:"policy"`

	// StripPrefix 转发前是否剥掉匹配的前缀
	StripPrefix bool `mapstructure:"strip_prefix"`
}

// RateLimitConfig 网关限流配置
type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	Rate   float64 `mapstructure:"rate"`
	Burst  int     `mapstructure:"burst"`
}

// DefaultConfig 默认网关配置
func DefaultConfig() Config {
	return Config{
		Listen:          ":8080",
		Mode:            "release",
		Caller:          "gateway",
		DefaultPolicy:   string(router.PolicyRoundRobin),
		UpstreamTimeout: 5 * time.Second,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Enable: false,
			Rate:   1000,
			Burst:  2000,
		},
	}
}

// ApplyDefaults 补齐零值字段
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Caller == "" {
		c.Caller = def.Caller
	}
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = def.DefaultPolicy
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = def.UpstreamTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RateLimit.Rate <= 0 {
		c.RateLimit.Rate = def.RateLimit.Rate
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("gateway listen address is required")
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid gateway mode: %s", c.Mode)
	}
	if _, ok := router.NewBalancer(router.Policy(c.DefaultPolicy)); !ok {
		return fmt.Errorf("unknown default policy: %s", c.DefaultPolicy)
	}
	seen := make(map[string]bool, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if !strings.HasPrefix(r.PathPrefix, "/") {
			return fmt.Errorf("route %d: path_prefix must start with /: %q", i, r.PathPrefix)
		}
		if r.Service == "" {
			return fmt.Errorf("route %d: service is required", i)
		}
		if seen[r.PathPrefix] {
			return fmt.Errorf("route %d: duplicate path_prefix %q", i, r.PathPrefix)
		}
		seen[r.PathPrefix] = true
		if r.Policy != "" {
			if _, ok := router.NewBalancer(router.Policy(r.Policy)); !ok {
				return fmt.Errorf("route %d: unknown policy %q", i, r.Policy)
			}
		}
	}
	return nil
}

// sortedRoutes 返回按前缀长度降序的路由副本（最长前缀优先）
func (c *Config) sortedRoutes() []RouteConfig {
	routes := make([]RouteConfig, len(c.Routes))
	copy(routes, c.Routes)
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})
	return routes
}
