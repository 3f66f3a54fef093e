package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher 测试用内存发布器
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	err    error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, topic string, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestDispatcher_Subscribe(t *testing.T) {
	t.Run("监听器按优先级顺序执行", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		var order []string
		d.Subscribe("instance.registered", ListenerFunc(func(ctx context.Context, e Event) error {
			order = append(order, "low")
			return nil
		}), WithPriority(1))
		d.Subscribe("instance.registered", ListenerFunc(func(ctx context.Context, e Event) error {
			order = append(order, "high")
			return nil
		}), WithPriority(10))

		err := d.Dispatch(context.Background(), NewEvent("instance.registered", nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"high", "low"}, order)
	})

	t.Run("取消订阅后不再收到事件", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		calls := 0
		unsub := d.Subscribe("instance.dead", ListenerFunc(func(ctx context.Context, e Event) error {
			calls++
			return nil
		}))

		require.NoError(t, d.Dispatch(context.Background(), NewEvent("instance.dead", nil)))
		unsub()
		require.NoError(t, d.Dispatch(context.Background(), NewEvent("instance.dead", nil)))

		assert.Equal(t, 1, calls)
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("ErrStopPropagation 中止后续监听器", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		var order []string
		d.Subscribe("breaker.opened", ListenerFunc(func(ctx context.Context, e Event) error {
			order = append(order, "first")
			return ErrStopPropagation
		}), WithPriority(2))
		d.Subscribe("breaker.opened", ListenerFunc(func(ctx context.Context, e Event) error {
			order = append(order, "second")
			return nil
		}), WithPriority(1))

		err := d.Dispatch(context.Background(), NewEvent("breaker.opened", nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"first"}, order)
	})

	t.Run("监听器错误会向上返回", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		boom := errors.New("boom")
		d.Subscribe("instance.suspect", ListenerFunc(func(ctx context.Context, e Event) error {
			return boom
		}))

		err := d.Dispatch(context.Background(), NewEvent("instance.suspect", nil))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("监听器 panic 不会击穿调度器", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		d.Subscribe("instance.evicted", ListenerFunc(func(ctx context.Context, e Event) error {
			panic("listener exploded")
		}))

		err := d.Dispatch(context.Background(), NewEvent("instance.evicted", nil))
		assert.Error(t, err)
	})

	t.Run("异步分发在协程池中执行", func(t *testing.T) {
		d := NewDispatcher(WithPoolSize(4))
		defer d.Close()

		done := make(chan struct{})
		d.Subscribe("instance.registered", ListenerFunc(func(ctx context.Context, e Event) error {
			close(done)
			return nil
		}))

		err := d.Dispatch(context.Background(), NewEvent("instance.registered", nil), WithDispatchAsync())
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("异步监听器未执行")
		}
	})
}

func TestDispatcher_Kafka(t *testing.T) {
	t.Run("未配置发布器时携带 Kafka 选项报错", func(t *testing.T) {
		d := NewDispatcher()
		defer d.Close()

		err := d.Dispatch(context.Background(), NewEvent("instance.dead", nil), WithKafka("fabric-events"))
		assert.ErrorIs(t, err, ErrKafkaNotAvailable)
	})

	t.Run("事件同时投递到 Kafka topic", func(t *testing.T) {
		pub := &fakePublisher{}
		d := NewDispatcher(WithKafkaPublisher(pub))
		defer d.Close()

		err := d.Dispatch(context.Background(), NewEvent("instance.dead", map[string]string{"service": "orders"}),
			WithKafka("fabric-events"), WithKafkaKey("orders"))
		require.NoError(t, err)

		pub.mu.Lock()
		defer pub.mu.Unlock()
		assert.Equal(t, []string{"fabric-events"}, pub.topics)
		assert.Equal(t, []string{"orders"}, pub.keys)
	})
}

func TestBaseEvent(t *testing.T) {
	e := NewEvent("instance.registered", 42)
	assert.Equal(t, "instance.registered", e.Name())
	assert.Equal(t, 42, e.Payload())
	assert.WithinDuration(t, time.Now(), e.OccurredAt(), time.Second)
}
