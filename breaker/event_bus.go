package breaker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// eventBus 熔断器事件总线
// 监听者在协程池上执行，发布方永不阻塞；池满时丢弃事件
type eventBus struct {
	mu      sync.RWMutex
	entries []busEntry
	nextID  uint64
	pool    *ants.Pool
	closed  atomic.Bool
}

// busEntry 一条订阅记录，filters 为 nil 表示接收全部事件
type busEntry struct {
	id       SubscriptionID
	listener EventListener
	filters  map[EventType]struct{}
}

// NewEventBus 创建事件总线
// capacity 为监听者协程池容量，小于等于 0 时使用默认值
func NewEventBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 64
	}
	pool, err := ants.NewPool(capacity, ants.WithNonblocking(true))
	if err != nil {
		pool, _ = ants.NewPool(64, ants.WithNonblocking(true))
	}
	return &eventBus{pool: pool}
}

// Subscribe 订阅事件
func (eb *eventBus) Subscribe(listener EventListener, filters ...EventType) SubscriptionID {
	entry := busEntry{
		id:       SubscriptionID(fmt.Sprintf("sub-%d", atomic.AddUint64(&eb.nextID, 1))),
		listener: listener,
	}
	if len(filters) > 0 {
		entry.filters = make(map[EventType]struct{}, len(filters))
		for _, f := range filters {
			entry.filters[f] = struct{}{}
		}
	}

	eb.mu.Lock()
	eb.entries = append(eb.entries, entry)
	eb.mu.Unlock()

	return entry.id
}

// Unsubscribe 取消订阅
func (eb *eventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, entry := range eb.entries {
		if entry.id == id {
			eb.entries = append(eb.entries[:i], eb.entries[i+1:]...)
			return
		}
	}
}

// Publish 发布事件给所有匹配的订阅者
func (eb *eventBus) Publish(event Event) {
	if event == nil || eb.closed.Load() {
		return
	}

	eventType := event.Type()
	for _, entry := range eb.snapshot() {
		if entry.filters != nil {
			if _, ok := entry.filters[eventType]; !ok {
				continue
			}
		}

		listener := entry.listener
		if err := eb.pool.Submit(func() { notify(listener, event) }); err != nil {
			// 池满或已关闭，丢弃
			continue
		}
	}
}

// Close 关闭总线并排空在途通知
func (eb *eventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	_ = eb.pool.ReleaseTimeout(time.Second)
}

// snapshot 复制订阅列表，通知期间不持锁
func (eb *eventBus) snapshot() []busEntry {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	entries := make([]busEntry, len(eb.entries))
	copy(entries, eb.entries)
	return entries
}

// notify 调用监听者，panic 不影响发布方
func notify(l EventListener, e Event) {
	defer func() {
		_ = recover()
	}()
	l.OnEvent(e)
}
