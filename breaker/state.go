package breaker

import (
	"sync"
	"time"
)

// stateManager 状态机
type stateManager struct {
	state            State
	lastStateChange  time.Time
	failureCount     int
	successCount     int
	halfOpenAttempts int
	mu               sync.RWMutex
}

// newStateManager 创建状态机
func newStateManager() *stateManager {
	return &stateManager{
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// GetState 获取当前状态（线程安全）
func (sm *stateManager) GetState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// CanAttempt 检查是否允许发起调用
func (sm *stateManager) CanAttempt(config TargetConfig) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		// 关闭状态放行所有请求
		return true

	case StateOpen:
		// 打开状态检查冷却时间，到期进入半开
		if time.Since(sm.lastStateChange) >= config.WaitDuration {
			sm.transitionTo(StateHalfOpen)
			// 触发迁移的这次调用占用第一个试探名额
			sm.halfOpenAttempts = 1
			return true
		}
		return false

	case StateHalfOpen:
		// 半开状态限制试探请求数
		if sm.halfOpenAttempts < config.TrialCalls {
			sm.halfOpenAttempts++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess 记录成功
func (sm *stateManager) RecordSuccess(config TargetConfig) (stateChanged bool, fromState, toState State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		sm.failureCount = 0

	case StateHalfOpen:
		sm.successCount++
		if sm.successCount >= config.TrialCalls {
			// 试探通过，恢复关闭状态
			fromState = sm.state
			sm.transitionTo(StateClosed)
			sm.successCount = 0
			sm.failureCount = 0
			toState = sm.state
			return true, fromState, toState
		}
	}

	return false, sm.state, sm.state
}

// RecordFailure 记录失败
func (sm *stateManager) RecordFailure() (stateChanged bool, fromState, toState State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		sm.failureCount++

	case StateHalfOpen:
		// 半开试探失败，直接回到打开状态并重置冷却计时
		fromState = sm.state
		sm.transitionTo(StateOpen)
		sm.successCount = 0
		sm.failureCount = 0
		toState = sm.state
		return true, fromState, toState
	}

	return false, sm.state, sm.state
}

// ReleaseTrial 归还一个半开试探名额
// 调用未产生有效结果（如被调用方取消）时使用，避免名额被白白耗尽
func (sm *stateManager) ReleaseTrial() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateHalfOpen && sm.halfOpenAttempts > 0 {
		sm.halfOpenAttempts--
	}
}

// ShouldOpen 根据外部策略判断结果决定是否打开熔断
func (sm *stateManager) ShouldOpen(shouldOpen bool) (stateChanged bool, fromState, toState State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateClosed && shouldOpen {
		fromState = sm.state
		sm.transitionTo(StateOpen)
		toState = sm.state
		return true, fromState, toState
	}

	return false, sm.state, sm.state
}

// Reset 重置状态
func (sm *stateManager) Reset() (stateChanged bool, fromState, toState State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateClosed {
		fromState = sm.state
		sm.transitionTo(StateClosed)
		sm.failureCount = 0
		sm.successCount = 0
		sm.halfOpenAttempts = 0
		toState = sm.state
		return true, fromState, toState
	}

	return false, sm.state, sm.state
}

// transitionTo 切换状态（内部方法，需持有锁）
func (sm *stateManager) transitionTo(newState State) {
	sm.state = newState
	sm.lastStateChange = time.Now()
}

// GetFailureCount 获取失败计数
func (sm *stateManager) GetFailureCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.failureCount
}

// GetLastStateChange 获取最近一次状态变化时间
func (sm *stateManager) GetLastStateChange() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastStateChange
}
