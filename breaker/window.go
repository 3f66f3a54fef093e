package breaker

import (
	"sort"
	"sync"
	"time"
)

// outcome 单次调用结果
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeTimeout
)

// callRecord 窗口内的一条调用记录
type callRecord struct {
	at      time.Time
	result  outcome
	latency time.Duration
}

// rollingWindow 混合滑动窗口指标采集器
// 环形缓冲最多保留 WindowCalls 条记录，快照时再按 WindowDuration 裁剪，
// 因此窗口实际覆盖 "最近 N 次调用" 与 "最近 T 时间" 中较小的那个
type rollingWindow struct {
	key      string
	config   TargetConfig
	stateMgr *stateManager

	records    []callRecord
	head       int // 下一条写入位置
	count      int
	rejections int64

	observers  map[ObserverID]MetricsObserver
	observerMu sync.RWMutex

	now func() time.Time

	mu sync.RWMutex
}

// newRollingWindow 创建滑动窗口
func newRollingWindow(key string, config TargetConfig, stateMgr *stateManager) *rollingWindow {
	return &rollingWindow{
		key:       key,
		config:    config,
		stateMgr:  stateMgr,
		records:   make([]callRecord, config.WindowCalls),
		observers: make(map[ObserverID]MetricsObserver),
		now:       time.Now,
	}
}

// record 写入一条记录（旧记录被环形覆盖，即调用数上限生效）
func (w *rollingWindow) record(result outcome, latency time.Duration) {
	w.mu.Lock()
	w.records[w.head] = callRecord{at: w.now(), result: result, latency: latency}
	w.head = (w.head + 1) % len(w.records)
	if w.count < len(w.records) {
		w.count++
	}
	w.mu.Unlock()

	w.notifyObservers()
}

// RecordSuccess 记录成功
func (w *rollingWindow) RecordSuccess(duration time.Duration) {
	w.record(outcomeSuccess, duration)
}

// RecordFailure 记录失败
func (w *rollingWindow) RecordFailure(duration time.Duration, err error) {
	w.record(outcomeFailure, duration)
}

// RecordTimeout 记录超时
func (w *rollingWindow) RecordTimeout(duration time.Duration) {
	w.record(outcomeTimeout, duration)
}

// RecordRejection 记录拒绝（不进入窗口，不影响错误率）
func (w *rollingWindow) RecordRejection() {
	w.mu.Lock()
	w.rejections++
	w.mu.Unlock()

	w.notifyObservers()
}

// GetSnapshot 获取当前快照
func (w *rollingWindow) GetSnapshot() *MetricsSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	now := w.now()
	windowStart := now.Add(-w.config.WindowDuration)

	var (
		successes int64
		failures  int64
		timeouts  int64
		latencies []time.Duration
		slowCalls int64
	)

	for i := 0; i < w.count; i++ {
		rec := w.records[(w.head-1-i+len(w.records)*2)%len(w.records)]
		if rec.at.Before(windowStart) {
			// 时间上限生效，更旧的记录全部出窗
			break
		}

		switch rec.result {
		case outcomeSuccess:
			successes++
		case outcomeFailure:
			failures++
		case outcomeTimeout:
			timeouts++
		}
		latencies = append(latencies, rec.latency)
		if rec.latency >= w.config.SlowCallThreshold {
			slowCalls++
		}
	}

	total := successes + failures + timeouts

	var successRate, errorRate, timeoutRate, slowCallRate float64
	if total > 0 {
		successRate = float64(successes) / float64(total)
		// 超时计入错误率
		errorRate = float64(failures+timeouts) / float64(total)
		timeoutRate = float64(timeouts) / float64(total)
		slowCallRate = float64(slowCalls) / float64(total)
	}

	var avgLatency, p50, p95, p99, maxLatency time.Duration
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, lat := range latencies {
			sum += lat
		}
		avgLatency = sum / time.Duration(len(latencies))

		p50 = latencies[len(latencies)*50/100]
		p95 = latencies[len(latencies)*95/100]
		p99 = latencies[len(latencies)*99/100]
		maxLatency = latencies[len(latencies)-1]
	}

	return &MetricsSnapshot{
		Key:           w.key,
		State:         w.stateMgr.GetState(),
		WindowStart:   windowStart,
		WindowEnd:     now,
		TotalRequests: total,
		Successes:     successes,
		Failures:      failures,
		Timeouts:      timeouts,
		Rejections:    w.rejections,
		SuccessRate:   successRate,
		ErrorRate:     errorRate,
		TimeoutRate:   timeoutRate,
		AvgLatency:    avgLatency,
		P50Latency:    p50,
		P95Latency:    p95,
		P99Latency:    p99,
		MaxLatency:    maxLatency,
		SlowCalls:     slowCalls,
		SlowCallRate:  slowCallRate,
	}
}

// Subscribe 订阅实时指标
func (w *rollingWindow) Subscribe(observer MetricsObserver) ObserverID {
	w.observerMu.Lock()
	defer w.observerMu.Unlock()

	id := ObserverID(time.Now().Format("20060102150405.000000"))
	w.observers[id] = observer
	return id
}

// Unsubscribe 取消订阅
func (w *rollingWindow) Unsubscribe(id ObserverID) {
	w.observerMu.Lock()
	defer w.observerMu.Unlock()

	delete(w.observers, id)
}

// Reset 重置指标
func (w *rollingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = make([]callRecord, w.config.WindowCalls)
	w.head = 0
	w.count = 0
	w.rejections = 0
}

// notifyObservers 通知所有观察者
func (w *rollingWindow) notifyObservers() {
	w.observerMu.RLock()
	observers := make([]MetricsObserver, 0, len(w.observers))
	for _, obs := range w.observers {
		observers = append(observers, obs)
	}
	w.observerMu.RUnlock()

	if len(observers) == 0 {
		return
	}

	snapshot := w.GetSnapshot()
	for _, obs := range observers {
		go obs.OnMetricsUpdated(snapshot)
	}
}
