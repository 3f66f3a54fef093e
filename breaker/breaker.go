// Package breaker 提供按 (调用方, 目标) 维度的熔断保护
//
// 设计理念：
//   - 独立包，除 logger/errcode 外不依赖其他组件
//   - 事件驱动，应用层可订阅所有事件
//   - 指标开放，应用层可访问和订阅实时数据
//   - 滑动窗口同时受调用数和时间双重约束，先到为准
package breaker

import (
	"context"
	"fmt"
	"time"
)

// Request 一次受保护的调用
type Request struct {
	// Caller 调用方标识（如 "gateway"）
	Caller string

	// Target 目标标识（服务名或实例 ID）
	Target string

	// Execute 实际调用函数
	Execute func(ctx context.Context) (interface{}, error)

	// Fallback 降级逻辑（可选）
	// 熔断拒绝或调用失败时触发；降级自身的错误直接上抛，不计入熔断统计
	Fallback func(ctx context.Context, err error) (interface{}, error)

	// Timeout 本次调用的超时（可选，0 表示使用配置的超时）
	Timeout time.Duration
}

// Key 熔断器标识，每个 (调用方, 目标) 一个独立状态机
func (r *Request) Key() string {
	return BreakerKey(r.Caller, r.Target)
}

// BreakerKey 组合 (调用方, 目标) 为熔断器标识
func BreakerKey(caller, target string) string {
	return fmt.Sprintf("%s->%s", caller, target)
}

// State 熔断器状态
type State int

const (
	// StateClosed 关闭（正常）
	StateClosed State = iota

	// StateOpen 打开（熔断）
	StateOpen

	// StateHalfOpen 半开（试探恢复）
	StateHalfOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// IsOpen 是否处于熔断状态
func (s State) IsOpen() bool {
	return s == StateOpen
}

// IsClosed 是否处于正常状态
func (s State) IsClosed() bool {
	return s == StateClosed
}

// IsHalfOpen 是否处于半开状态
func (s State) IsHalfOpen() bool {
	return s == StateHalfOpen
}
