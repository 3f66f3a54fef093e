package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWindow(cfg TargetConfig) *rollingWindow {
	return newRollingWindow("gateway->orders", cfg, newStateManager())
}

func TestRollingWindow_CountBound(t *testing.T) {
	cfg := DefaultTargetConfig()
	cfg.WindowCalls = 10
	cfg.WindowDuration = time.Hour // 时间上限不生效
	w := newTestWindow(cfg)

	// 先写 10 次失败，再写 10 次成功：旧的失败记录被环形覆盖
	for i := 0; i < 10; i++ {
		w.RecordFailure(time.Millisecond, errors.New("boom"))
	}
	for i := 0; i < 10; i++ {
		w.RecordSuccess(time.Millisecond)
	}

	snapshot := w.GetSnapshot()
	assert.Equal(t, int64(10), snapshot.TotalRequests)
	assert.Equal(t, int64(10), snapshot.Successes)
	assert.Equal(t, int64(0), snapshot.Failures)
	assert.Equal(t, float64(0), snapshot.ErrorRate)
}

func TestRollingWindow_TimeBound(t *testing.T) {
	cfg := DefaultTargetConfig()
	cfg.WindowCalls = 100
	cfg.WindowDuration = 30 * time.Second
	w := newTestWindow(cfg)

	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	w.RecordFailure(time.Millisecond, errors.New("boom"))
	w.RecordFailure(time.Millisecond, errors.New("boom"))

	mu.Lock()
	now = now.Add(time.Minute) // 旧记录出窗
	mu.Unlock()

	w.RecordSuccess(time.Millisecond)

	snapshot := w.GetSnapshot()
	assert.Equal(t, int64(1), snapshot.TotalRequests)
	assert.Equal(t, int64(0), snapshot.Failures)
	assert.Equal(t, float64(0), snapshot.ErrorRate)
}

func TestRollingWindow_ErrorRateIncludesTimeouts(t *testing.T) {
	cfg := DefaultTargetConfig()
	w := newTestWindow(cfg)

	for i := 0; i < 5; i++ {
		w.RecordSuccess(time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		w.RecordFailure(time.Millisecond, errors.New("boom"))
	}
	for i := 0; i < 2; i++ {
		w.RecordTimeout(time.Second)
	}

	snapshot := w.GetSnapshot()
	assert.Equal(t, int64(10), snapshot.TotalRequests)
	assert.InDelta(t, 0.5, snapshot.ErrorRate, 0.001)
	assert.InDelta(t, 0.2, snapshot.TimeoutRate, 0.001)
}

func TestRollingWindow_Rejections(t *testing.T) {
	w := newTestWindow(DefaultTargetConfig())

	w.RecordRejection()
	w.RecordRejection()

	snapshot := w.GetSnapshot()
	assert.Equal(t, int64(2), snapshot.Rejections)
	assert.Equal(t, int64(0), snapshot.TotalRequests, "拒绝不计入窗口样本")

	w.Reset()
	assert.Equal(t, int64(0), w.GetSnapshot().Rejections)
}

func TestRollingWindow_Latency(t *testing.T) {
	cfg := DefaultTargetConfig()
	cfg.SlowCallThreshold = 100 * time.Millisecond
	w := newTestWindow(cfg)

	w.RecordSuccess(10 * time.Millisecond)
	w.RecordSuccess(50 * time.Millisecond)
	w.RecordSuccess(200 * time.Millisecond)

	snapshot := w.GetSnapshot()
	assert.Equal(t, 200*time.Millisecond, snapshot.MaxLatency)
	assert.Equal(t, int64(1), snapshot.SlowCalls)
	assert.InDelta(t, 1.0/3.0, snapshot.SlowCallRate, 0.001)
}

func TestRollingWindow_Observer(t *testing.T) {
	w := newTestWindow(DefaultTargetConfig())

	updates := make(chan *MetricsSnapshot, 4)
	id := w.Subscribe(observerFunc(func(s *MetricsSnapshot) {
		select {
		case updates <- s:
		default:
		}
	}))
	defer w.Unsubscribe(id)

	w.RecordSuccess(time.Millisecond)

	select {
	case s := <-updates:
		assert.Equal(t, int64(1), s.TotalRequests)
	case <-time.After(2 * time.Second):
		t.Fatal("等待指标更新超时")
	}
}

type observerFunc func(*MetricsSnapshot)

func (f observerFunc) OnMetricsUpdated(s *MetricsSnapshot) { f(s) }
