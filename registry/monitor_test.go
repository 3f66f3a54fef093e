package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/event"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMonitor(t *testing.T, clock *fakeClock, opts ...MonitorOption) (*Monitor, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append(opts, WithClock(clock.Now))
	m, err := NewMonitor(store, MonitorConfig{
		RenewInterval: 30 * time.Second,
		SweepInterval: 10 * time.Second,
		SuspectAfter:  1,
		EvictAfter:    3,
	}, opts...)
	require.NoError(t, err)
	return m, store
}

func registerAt(t *testing.T, store *MemoryStore, clock *fakeClock, service, id string) {
	t.Helper()
	inst := newTestInstance(service, id, 9100)
	require.NoError(t, store.Register(context.Background(), inst))
	// 注册时间由存储取 time.Now()，回拨到假时钟
	_, err := store.Renew(context.Background(), service, id, clock.Now())
	require.NoError(t, err)
}

func TestMonitor_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("错过一个心跳周期进入 SUSPECT", func(t *testing.T) {
		clock := newFakeClock()
		m, store := newTestMonitor(t, clock)
		registerAt(t, store, clock, "orders", "orders-1")

		clock.Advance(31 * time.Second)
		m.Sweep(ctx)

		instances, err := store.Lookup(ctx, "orders")
		require.NoError(t, err)
		assert.Empty(t, instances, "SUSPECT 实例不应参与路由")

		snapshot, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot, 1)
		assert.Equal(t, StateSuspect, snapshot[0].State)
	})

	t.Run("按时续约的实例保持 HEALTHY", func(t *testing.T) {
		clock := newFakeClock()
		m, store := newTestMonitor(t, clock)
		registerAt(t, store, clock, "orders", "orders-1")

		clock.Advance(20 * time.Second)
		require.NoError(t, m.Renew(ctx, "orders", "orders-1"))
		clock.Advance(20 * time.Second)
		m.Sweep(ctx)

		instances, err := store.Lookup(ctx, "orders")
		require.NoError(t, err)
		assert.Len(t, instances, 1)
	})

	t.Run("超过宽限期判定 DEAD 并在下一轮清除", func(t *testing.T) {
		clock := newFakeClock()
		m, store := newTestMonitor(t, clock)
		registerAt(t, store, clock, "orders", "orders-1")

		clock.Advance(31 * time.Second)
		m.Sweep(ctx) // HEALTHY -> SUSPECT

		clock.Advance(60 * time.Second) // 累计 91s > 3*30s
		m.Sweep(ctx)                    // SUSPECT -> DEAD

		snapshot, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot, 1)
		assert.Equal(t, StateDead, snapshot[0].State)

		m.Sweep(ctx) // DEAD 清除
		snapshot, err = store.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snapshot)
	})

	t.Run("清除后续约返回 NotFound", func(t *testing.T) {
		clock := newFakeClock()
		m, store := newTestMonitor(t, clock)
		registerAt(t, store, clock, "orders", "orders-1")

		clock.Advance(2 * time.Minute)
		m.Sweep(ctx)
		clock.Advance(2 * time.Minute)
		m.Sweep(ctx)
		m.Sweep(ctx)

		err := m.Renew(ctx, "orders", "orders-1")
		assert.ErrorIs(t, err, errcode.ErrInstanceNotFound)
	})

	t.Run("SUSPECT 实例续约恢复参与路由", func(t *testing.T) {
		clock := newFakeClock()
		m, store := newTestMonitor(t, clock)
		registerAt(t, store, clock, "orders", "orders-1")

		clock.Advance(31 * time.Second)
		m.Sweep(ctx)

		require.NoError(t, m.Renew(ctx, "orders", "orders-1"))

		instances, err := store.Lookup(ctx, "orders")
		require.NoError(t, err)
		assert.Len(t, instances, 1)
	})
}

func TestMonitor_Events(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	d := event.NewDispatcher()
	defer d.Close()

	var mu sync.Mutex
	received := make(map[string]int)
	notify := make(chan string, 16)
	for _, name := range []string{EventInstanceSuspect, EventInstanceDead, EventInstanceEvicted} {
		name := name
		d.Subscribe(name, event.ListenerFunc(func(ctx context.Context, e event.Event) error {
			mu.Lock()
			received[e.Name()]++
			mu.Unlock()
			notify <- e.Name()
			return nil
		}))
	}

	m, store := newTestMonitor(t, clock, WithDispatcher(d))
	registerAt(t, store, clock, "orders", "orders-1")

	clock.Advance(31 * time.Second)
	m.Sweep(ctx)
	clock.Advance(90 * time.Second)
	m.Sweep(ctx)
	m.Sweep(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-notify:
		case <-time.After(2 * time.Second):
			t.Fatal("等待实例事件超时")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, received[EventInstanceSuspect])
	assert.Equal(t, 1, received[EventInstanceDead])
	assert.Equal(t, 1, received[EventInstanceEvicted])
}

func TestMonitorConfig(t *testing.T) {
	t.Run("缺省配置补全", func(t *testing.T) {
		var cfg MonitorConfig
		cfg.ApplyDefaults()
		assert.Equal(t, 30*time.Second, cfg.RenewInterval)
		assert.Equal(t, 3, cfg.EvictAfter)
	})

	t.Run("evict_after 必须大于 suspect_after", func(t *testing.T) {
		cfg := MonitorConfig{RenewInterval: time.Second, SweepInterval: time.Second, SuspectAfter: 3, EvictAfter: 2}
		assert.Error(t, cfg.Validate())
	})
}

func TestMonitor_AnnounceMembershipEvents(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	d := event.NewDispatcher()
	defer d.Close()

	var mu sync.Mutex
	var got []string
	for _, name := range []string{EventInstanceRegistered, EventInstanceDeregistered} {
		d.Subscribe(name, event.ListenerFunc(func(ctx context.Context, e event.Event) error {
			mu.Lock()
			got = append(got, e.Name())
			mu.Unlock()
			return nil
		}))
	}

	m, store := newTestMonitor(t, clock, WithDispatcher(d))
	inst := newTestInstance("orders", "orders-1", 9100)
	require.NoError(t, store.Register(ctx, inst))

	m.AnnounceRegistered(ctx, inst)
	m.AnnounceDeregistered(ctx, "orders", "orders-1")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, EventInstanceRegistered)
	assert.Contains(t, got, EventInstanceDeregistered)
}
