package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
)

// circuitBreaker 单个 (调用方, 目标) 的熔断器
type circuitBreaker struct {
	key      string
	config   TargetConfig
	stateMgr *stateManager
	metrics  MetricsCollector
	strategy Strategy
	eventBus EventBus
	logger   *logger.CtxZapLogger
}

// newCircuitBreaker 创建熔断器实例
func newCircuitBreaker(key string, config TargetConfig, eventBus EventBus, log *logger.CtxZapLogger) *circuitBreaker {
	stateMgr := newStateManager()
	metrics := newRollingWindow(key, config, stateMgr)
	strategy := GetStrategyByName(config.Strategy)

	return &circuitBreaker{
		key:      key,
		config:   config,
		stateMgr: stateMgr,
		metrics:  metrics,
		strategy: strategy,
		eventBus: eventBus,
		logger:   log,
	}
}

// Execute 执行受保护的调用
func (cb *circuitBreaker) Execute(ctx context.Context, req *Request) (interface{}, error) {
	currentState := cb.stateMgr.GetState()

	// 检查是否允许执行
	if !cb.stateMgr.CanAttempt(cb.config) {
		if cb.logger != nil {
			cb.logger.WarnCtx(ctx, "⛔ 熔断拒绝请求",
				zap.String("key", cb.key),
				zap.String("state", currentState.String()))
		}
		cb.metrics.RecordRejection()

		if cb.eventBus != nil {
			cb.eventBus.Publish(&RejectedEvent{
				BaseEvent:    NewBaseEvent(EventCallRejected, cb.key, ctx),
				CurrentState: cb.stateMgr.GetState(),
			})
		}

		openErr := errcode.ErrCircuitOpen.WithMsgf("circuit open for %s", cb.key)

		// 短路走降级，不发起任何网络调用
		if req.Fallback != nil {
			return cb.executeFallback(ctx, req, openErr)
		}
		return nil, openErr
	}

	// 执行实际调用（受超时约束）
	callCtx := ctx
	var cancel context.CancelFunc
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = cb.config.CallTimeout
	}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := req.Execute(callCtx)
	duration := time.Since(start)

	if err != nil {
		cb.handleFailure(ctx, duration, err)
		// 调用失败也尝试降级；降级自身的错误直接上抛
		if req.Fallback != nil {
			return cb.executeFallback(ctx, req, err)
		}
		return result, err
	}

	cb.handleSuccess(ctx, duration)
	return result, nil
}

// handleSuccess 处理成功
func (cb *circuitBreaker) handleSuccess(ctx context.Context, duration time.Duration) {
	cb.metrics.RecordSuccess(duration)

	if cb.eventBus != nil {
		cb.eventBus.Publish(&CallEvent{
			BaseEvent: NewBaseEvent(EventCallSuccess, cb.key, ctx),
			Success:   true,
			Duration:  duration,
		})
	}

	changed, fromState, toState := cb.stateMgr.RecordSuccess(cb.config)
	if changed {
		cb.publishStateChangedEvent(ctx, fromState, toState, "trial calls succeeded")
		// 恢复关闭后清空滑动窗口，否则熔断前的失败记录会让
		// 下一次失败立刻再次触发熔断
		if toState == StateClosed {
			cb.metrics.Reset()
		}
	}

	// 连续失败策略需要重置计数
	if s, ok := cb.strategy.(*consecutiveFailuresStrategy); ok {
		s.RecordSuccess()
	}
}

// handleFailure 处理失败
func (cb *circuitBreaker) handleFailure(ctx context.Context, duration time.Duration, err error) {
	// 调用方主动取消不说明目标异常，不计入窗口，
	// 避免客户端批量断连把健康目标熔断
	if errors.Is(err, context.Canceled) {
		if cb.logger != nil {
			cb.logger.DebugCtx(ctx, "调用被调用方取消，不计入熔断统计",
				zap.String("key", cb.key),
				zap.Duration("duration", duration))
		}
		cb.stateMgr.ReleaseTrial()
		return
	}

	// 超时同样计入失败，但单独记录
	isTimeout := errors.Is(err, context.DeadlineExceeded)

	if cb.logger != nil {
		cb.logger.DebugCtx(ctx, "❌ 受保护调用失败",
			zap.String("key", cb.key),
			zap.Bool("timeout", isTimeout),
			zap.Duration("duration", duration),
			zap.Error(err))
	}

	if isTimeout {
		cb.metrics.RecordTimeout(duration)

		if cb.eventBus != nil {
			cb.eventBus.Publish(&CallEvent{
				BaseEvent: NewBaseEvent(EventCallTimeout, cb.key, ctx),
				Success:   false,
				Duration:  duration,
				Error:     err,
			})
		}
	} else {
		cb.metrics.RecordFailure(duration, err)

		if cb.eventBus != nil {
			cb.eventBus.Publish(&CallEvent{
				BaseEvent: NewBaseEvent(EventCallFailure, cb.key, ctx),
				Success:   false,
				Duration:  duration,
				Error:     err,
			})
		}
	}

	// 半开试探失败直接回到打开状态
	changed, fromState, toState := cb.stateMgr.RecordFailure()
	if changed {
		cb.publishStateChangedEvent(ctx, fromState, toState, "failure in half-open state")
		return
	}

	if s, ok := cb.strategy.(*consecutiveFailuresStrategy); ok {
		s.RecordFailure()
	}

	// 检查是否应触发熔断
	snapshot := cb.metrics.GetSnapshot()
	if cb.strategy.ShouldOpen(snapshot, cb.config) {
		if cb.logger != nil {
			cb.logger.WarnCtx(ctx, "⛔ 熔断器触发!",
				zap.String("key", cb.key),
				zap.Int64("total_requests", snapshot.TotalRequests),
				zap.Float64("error_rate", snapshot.ErrorRate))
		}
		changed, fromState, toState := cb.stateMgr.ShouldOpen(true)
		if changed {
			cb.publishStateChangedEvent(ctx, fromState, toState, "error threshold exceeded")
		}
	}
}

// executeFallback 执行降级
func (cb *circuitBreaker) executeFallback(ctx context.Context, req *Request, originalErr error) (interface{}, error) {
	start := time.Now()
	result, err := req.Fallback(ctx, originalErr)
	duration := time.Since(start)

	if cb.eventBus != nil {
		eventType := EventFallbackSuccess
		if err != nil {
			eventType = EventFallbackFailure
		}

		cb.eventBus.Publish(&FallbackEvent{
			BaseEvent: NewBaseEvent(eventType, cb.key, ctx),
			Success:   err == nil,
			Duration:  duration,
			Error:     err,
		})
	}

	return result, err
}

// publishStateChangedEvent 发布状态变化事件
func (cb *circuitBreaker) publishStateChangedEvent(ctx context.Context, fromState, toState State, reason string) {
	if cb.logger != nil {
		cb.logger.InfoCtx(ctx, "🔄 熔断器状态变化",
			zap.String("key", cb.key),
			zap.String("from", fromState.String()),
			zap.String("to", toState.String()),
			zap.String("reason", reason))
	}
	if cb.eventBus != nil {
		cb.eventBus.Publish(&StateChangedEvent{
			BaseEvent: NewBaseEvent(EventStateChanged, cb.key, ctx),
			FromState: fromState,
			ToState:   toState,
			Reason:    reason,
			Metrics:   cb.metrics.GetSnapshot(),
		})
	}
}

// GetState 获取熔断器状态
func (cb *circuitBreaker) GetState() State {
	return cb.stateMgr.GetState()
}

// GetMetrics 获取指标快照
func (cb *circuitBreaker) GetMetrics() *MetricsSnapshot {
	return cb.metrics.GetSnapshot()
}

// Reset 重置状态和指标
func (cb *circuitBreaker) Reset() {
	cb.stateMgr.Reset()
	cb.metrics.Reset()
}

// Manager 熔断器管理器
// 按 (调用方, 目标) 惰性创建熔断器，进程生命周期内复用
type Manager struct {
	config   Config
	breakers map[string]*circuitBreaker
	eventBus EventBus
	logger   *logger.CtxZapLogger
	mu       sync.RWMutex
}

// NewManager 创建熔断器管理器
func NewManager(config Config) (*Manager, error) {
	return NewManagerWithLogger(config, nil)
}

// NewManagerWithLogger 创建带 logger 的熔断器管理器
func NewManagerWithLogger(config Config, ctxLogger *logger.CtxZapLogger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("breaker")
	}

	ctx := context.Background()

	// 未启用时返回空管理器，所有调用直接透传
	if !config.Enabled {
		ctxLogger.DebugCtx(ctx, "🚫 熔断器未启用，所有调用直接执行")
		return &Manager{
			config:   config,
			breakers: make(map[string]*circuitBreaker),
			logger:   ctxLogger,
		}, nil
	}

	eventBus := NewEventBus(config.EventBusBuffer)

	ctxLogger.DebugCtx(ctx, "🎯 熔断器管理器初始化",
		zap.Int("event_bus_buffer", config.EventBusBuffer))

	return &Manager{
		config:   config,
		breakers: make(map[string]*circuitBreaker),
		eventBus: eventBus,
		logger:   ctxLogger,
	}, nil
}

// Execute 执行受保护的调用
func (m *Manager) Execute(ctx context.Context, req *Request) (interface{}, error) {
	// 未启用时直接执行
	if !m.config.Enabled {
		return req.Execute(ctx)
	}

	breaker := m.getOrCreateBreaker(req.Key(), req.Target)
	return breaker.Execute(ctx, req)
}

// GetState 获取熔断器状态
func (m *Manager) GetState(caller, target string) State {
	breaker := m.getOrCreateBreaker(BreakerKey(caller, target), target)
	return breaker.GetState()
}

// GetMetrics 获取熔断器指标
func (m *Manager) GetMetrics(caller, target string) *MetricsSnapshot {
	breaker := m.getOrCreateBreaker(BreakerKey(caller, target), target)
	return breaker.GetMetrics()
}

// GetEventBus 获取事件总线
func (m *Manager) GetEventBus() EventBus {
	return m.eventBus
}

// SubscribeMetrics 订阅指标更新
func (m *Manager) SubscribeMetrics(caller, target string, observer MetricsObserver) ObserverID {
	breaker := m.getOrCreateBreaker(BreakerKey(caller, target), target)
	return breaker.metrics.Subscribe(observer)
}

// Reset 手动重置指定熔断器
func (m *Manager) Reset(caller, target string) {
	m.mu.RLock()
	breaker, exists := m.breakers[BreakerKey(caller, target)]
	m.mu.RUnlock()
	if exists {
		breaker.Reset()
	}
}

// Close 关闭管理器
func (m *Manager) Close() {
	if m.eventBus != nil {
		m.eventBus.Close()
	}
}

// getOrCreateBreaker 获取或创建熔断器（双重检查锁）
func (m *Manager) getOrCreateBreaker(key, target string) *circuitBreaker {
	m.mu.RLock()
	if breaker, exists := m.breakers[key]; exists {
		m.mu.RUnlock()
		return breaker
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[key]; exists {
		return breaker
	}

	// 目标级配置按 target 查找，不同调用方对同一目标共享阈值
	targetConfig := m.config.GetTargetConfig(target)

	breaker := newCircuitBreaker(key, targetConfig, m.eventBus, m.logger)
	m.breakers[key] = breaker

	if m.logger != nil {
		m.logger.DebugCtx(context.Background(), "🎯 创建熔断器实例",
			zap.String("key", key),
			zap.String("strategy", targetConfig.Strategy),
			zap.Duration("wait_duration", targetConfig.WaitDuration))
	}

	return breaker
}
