package server

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-fabric/httpx"
	"github.com/KOMKZ/go-fabric/middleware"
)

// Config 注册中心 HTTP 服务配置
type Config struct {
	// Listen 监听地址，例如 ":8500"
	Listen string `mapstructure:"listen"`

	// Mode gin 运行模式：debug/release/test
	Mode string `mapstructure:"mode"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// EnableCORS 是否开启跨域中间件
	EnableCORS bool `mapstructure:"enable_cors"`

	// RateLimit 入口限流（令牌桶）
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// RequestLog 请求日志
	RequestLog middleware.RequestLogConfig `mapstructure:"request_log"`

	// ErrorLogging 业务错误日志
	ErrorLogging httpx.ErrorLoggingConfig `mapstructure:"error_logging"`
}

// RateLimitConfig 服务端限流配置
type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	Rate   float64 `mapstructure:"rate"`
	Burst  int     `mapstructure:"burst"`
}

// DefaultConfig 默认服务配置
func DefaultConfig() Config {
	return Config{
		Listen:          ":8500",
		Mode:            "release",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Enable: false,
			Rate:   500,
			Burst:  1000,
		},
		RequestLog: middleware.RequestLogConfig{
			SkipPaths: []string{"/health", "/health/liveness", "/health/readiness"},
		},
		ErrorLogging: httpx.DefaultErrorLoggingConfig(),
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
	if len(c.RequestLog.SkipPaths) == 0 {
		c.RequestLog.SkipPaths = def.RequestLog.SkipPaths
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode: %s", c.Mode)
	}
	return nil
}
