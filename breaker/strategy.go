package breaker

import "sync/atomic"

// Strategy 熔断判定策略接口
type Strategy interface {
	// ShouldOpen 判断是否应该熔断
	ShouldOpen(snapshot *MetricsSnapshot, config TargetConfig) bool

	// Name 策略名称
	Name() string
}

// errorRateStrategy 错误率策略
type errorRateStrategy struct{}

func (s *errorRateStrategy) Name() string {
	return "error_rate"
}

func (s *errorRateStrategy) ShouldOpen(snapshot *MetricsSnapshot, config TargetConfig) bool {
	// 最小请求数检查
	if snapshot.TotalRequests < int64(config.MinRequests) {
		return false
	}

	// 错误率检查（超时计入失败）
	return snapshot.ErrorRate >= config.ErrorRateThreshold
}

// slowCallRateStrategy 慢调用率策略
type slowCallRateStrategy struct{}

func (s *slowCallRateStrategy) Name() string {
	return "slow_call_rate"
}

func (s *slowCallRateStrategy) ShouldOpen(snapshot *MetricsSnapshot, config TargetConfig) bool {
	if snapshot.TotalRequests < int64(config.MinRequests) {
		return false
	}

	return snapshot.SlowCallRate >= config.SlowRateThreshold
}

// consecutiveFailuresStrategy 连续失败策略
// 计数会被并发的调用结果读写，使用 atomic 保护
type consecutiveFailuresStrategy struct {
	failureCount int64
}

func (s *consecutiveFailuresStrategy) Name() string {
	return "consecutive_failures"
}

func (s *consecutiveFailuresStrategy) ShouldOpen(snapshot *MetricsSnapshot, config TargetConfig) bool {
	return atomic.LoadInt64(&s.failureCount) >= int64(config.ConsecutiveFailures)
}

// RecordSuccess 成功时重置计数
func (s *consecutiveFailuresStrategy) RecordSuccess() {
	atomic.StoreInt64(&s.failureCount, 0)
}

// RecordFailure 失败时递增计数
func (s *consecutiveFailuresStrategy) RecordFailure() {
	atomic.AddInt64(&s.failureCount, 1)
}

// GetStrategyByName 根据名称获取策略
func GetStrategyByName(name string) Strategy {
	switch name {
	case "error_rate":
		return &errorRateStrategy{}
	case "slow_call_rate":
		return &slowCallRateStrategy{}
	case "consecutive_failures":
		return &consecutiveFailuresStrategy{}
	default:
		return &errorRateStrategy{} // 默认错误率策略
	}
}
