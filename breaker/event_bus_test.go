package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	ctx := context.Background()

	stateEvent := func() Event {
		return &StateChangedEvent{
			BaseEvent: NewBaseEvent(EventStateChanged, "gateway->orders", ctx),
			FromState: StateClosed,
			ToState:   StateOpen,
		}
	}
	callEvent := func() Event {
		return &CallEvent{
			BaseEvent: NewBaseEvent(EventCallSuccess, "gateway->orders", ctx),
			Success:   true,
		}
	}

	t.Run("按类型过滤投递", func(t *testing.T) {
		bus := NewEventBus(8)
		defer bus.Close()

		got := make(chan Event, 8)
		bus.Subscribe(EventListenerFunc(func(e Event) { got <- e }), EventStateChanged)

		bus.Publish(callEvent())
		bus.Publish(stateEvent())

		select {
		case e := <-got:
			assert.Equal(t, EventStateChanged, e.Type())
		case <-time.After(time.Second):
			t.Fatal("等待事件超时")
		}

		select {
		case e := <-got:
			t.Fatalf("被过滤的事件不应投递: %v", e.Type())
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("无过滤接收全部事件", func(t *testing.T) {
		bus := NewEventBus(8)
		defer bus.Close()

		got := make(chan Event, 8)
		bus.Subscribe(EventListenerFunc(func(e Event) { got <- e }))

		bus.Publish(callEvent())
		bus.Publish(stateEvent())

		for i := 0; i < 2; i++ {
			select {
			case <-got:
			case <-time.After(time.Second):
				t.Fatal("等待事件超时")
			}
		}
	})

	t.Run("取消订阅后不再投递", func(t *testing.T) {
		bus := NewEventBus(8)
		defer bus.Close()

		got := make(chan Event, 8)
		id := bus.Subscribe(EventListenerFunc(func(e Event) { got <- e }))
		bus.Unsubscribe(id)

		bus.Publish(stateEvent())

		select {
		case <-got:
			t.Fatal("取消订阅后不应收到事件")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("监听者 panic 不影响其他监听者", func(t *testing.T) {
		bus := NewEventBus(8)
		defer bus.Close()

		got := make(chan Event, 8)
		bus.Subscribe(EventListenerFunc(func(e Event) { panic("boom") }))
		bus.Subscribe(EventListenerFunc(func(e Event) { got <- e }))

		bus.Publish(stateEvent())

		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("等待事件超时")
		}
	})

	t.Run("关闭后发布与再次关闭均为空操作", func(t *testing.T) {
		bus := NewEventBus(8)

		got := make(chan Event, 8)
		bus.Subscribe(EventListenerFunc(func(e Event) { got <- e }))

		bus.Close()
		bus.Close()
		bus.Publish(stateEvent())

		select {
		case <-got:
			t.Fatal("关闭后不应投递事件")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
