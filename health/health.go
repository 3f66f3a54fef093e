// Package health 提供统一的健康检查能力：
// 注册若干检查项，聚合器并发执行并汇总整体状态。
package health

import (
	"context"
	"time"
)

// Status 健康状态枚举
type Status string

const (
	// StatusHealthy 健康
	StatusHealthy Status = "healthy"
	// StatusDegraded 降级（部分功能不可用）
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 不健康
	StatusUnhealthy Status = "unhealthy"
)

// Checker 单个健康检查项
type Checker interface {
	// Name 检查项名称（在响应中作为 key）
	Name() string
	// Check 执行检查，返回 nil 表示健康
	Check(ctx context.Context) error
}

// CheckerFunc 函数式检查项
type CheckerFunc struct {
	CheckerName string
	CheckFn     func(ctx context.Context) error
}

func (f CheckerFunc) Name() string { return f.CheckerName }

func (f CheckerFunc) Check(ctx context.Context) error { return f.CheckFn(ctx) }

// CheckResult 单个检查项的结果
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response 健康检查响应
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy 判断整体是否健康
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded 判断是否降级
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}
