package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy 计算第 attempt 次失败后的等待时间（attempt 从 1 开始）
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// BackoffOption 退避策略选项
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     float64
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{
		multiplier: 2.0,
		maxDelay:   30 * time.Second,
		jitter:     0.1,
	}
}

// WithMultiplier 设置指数倍率
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 1 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay 设置等待时间上限
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitter 设置抖动比例 (0-1)，避免多个客户端同步重试
func WithJitter(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1 {
			c.jitter = ratio
		}
	}
}

type exponentialBackoff struct {
	base time.Duration
	cfg  *backoffConfig
}

// ExponentialBackoff 指数退避：base, base*m, base*m² ...，封顶 maxDelay
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	cfg := defaultBackoffConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &exponentialBackoff{base: base, cfg: cfg}
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.base) * math.Pow(b.cfg.multiplier, float64(attempt-1))
	if delay > float64(b.cfg.maxDelay) {
		delay = float64(b.cfg.maxDelay)
	}
	return time.Duration(applyJitter(delay, b.cfg.jitter))
}

type constantBackoff struct {
	delay time.Duration
	cfg   *backoffConfig
}

// ConstantBackoff 固定间隔退避
func ConstantBackoff(delay time.Duration, opts ...BackoffOption) BackoffStrategy {
	cfg := defaultBackoffConfig()
	cfg.jitter = 0
	for _, opt := range opts {
		opt(cfg)
	}
	return &constantBackoff{delay: delay, cfg: cfg}
}

func (b *constantBackoff) Next(attempt int) time.Duration {
	return time.Duration(applyJitter(float64(b.delay), b.cfg.jitter))
}

func applyJitter(delay, jitter float64) float64 {
	if jitter <= 0 {
		return delay
	}
	// delay * [1-jitter, 1+jitter)
	factor := 1 + jitter*(2*rand.Float64()-1)
	return delay * factor
}
