package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/registry"
)

func seedStore(t *testing.T, ids ...string) *registry.MemoryStore {
	t.Helper()
	store := registry.NewMemoryStore()
	for i, id := range ids {
		err := store.Register(context.Background(), &registry.Instance{
			ServiceName: "orders",
			InstanceID:  id,
			Address:     "10.0.0.1",
			Port:        9100 + i,
		})
		require.NoError(t, err)
	}
	return store
}

func TestRouter_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("轮询策略依次命中每个实例", func(t *testing.T) {
		store := seedStore(t, "orders-a", "orders-b", "orders-c")
		r := NewRouter(store)

		seen := make(map[string]int)
		for i := 0; i < 3; i++ {
			decision, err := r.Resolve(ctx, "orders", PolicyRoundRobin)
			require.NoError(t, err)
			seen[decision.Instance.InstanceID]++
		}

		assert.Equal(t, map[string]int{"orders-a": 1, "orders-b": 1, "orders-c": 1}, seen)
	})

	t.Run("轮询游标跨请求回绕", func(t *testing.T) {
		store := seedStore(t, "orders-a", "orders-b")
		r := NewRouter(store)

		first, err := r.Resolve(ctx, "orders", PolicyRoundRobin)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, "orders", PolicyRoundRobin)
		require.NoError(t, err)
		third, err := r.Resolve(ctx, "orders", PolicyRoundRobin)
		require.NoError(t, err)

		assert.Equal(t, first.Instance.InstanceID, third.Instance.InstanceID)
	})

	t.Run("无健康实例返回 NoHealthyInstance", func(t *testing.T) {
		store := registry.NewMemoryStore()
		r := NewRouter(store)

		_, err := r.Resolve(ctx, "ghost", PolicyRoundRobin)
		assert.ErrorIs(t, err, errcode.ErrNoHealthyInstance)
	})

	t.Run("未知策略返回 UnknownPolicy", func(t *testing.T) {
		store := seedStore(t, "orders-a")
		r := NewRouter(store)

		_, err := r.Resolve(ctx, "orders", Policy("FANCY"))
		assert.ErrorIs(t, err, errcode.ErrUnknownPolicy)
	})

	t.Run("解析结果携带注册表版本号", func(t *testing.T) {
		store := seedStore(t, "orders-a")
		r := NewRouter(store)

		decision, err := r.Resolve(ctx, "orders", PolicyRoundRobin)
		require.NoError(t, err)
		assert.Equal(t, store.Version(), decision.Version)
	})

	t.Run("SUSPECT 实例立刻从解析结果消失", func(t *testing.T) {
		store := seedStore(t, "orders-a", "orders-b")
		r := NewRouter(store)

		ok, err := store.Transition(ctx, "orders", "orders-a", registry.StateHealthy, registry.StateSuspect)
		require.NoError(t, err)
		require.True(t, ok)

		for i := 0; i < 4; i++ {
			decision, err := r.Resolve(ctx, "orders", PolicyRoundRobin)
			require.NoError(t, err)
			assert.Equal(t, "orders-b", decision.Instance.InstanceID)
		}
	})

	t.Run("随机策略只会命中健康实例", func(t *testing.T) {
		store := seedStore(t, "orders-a", "orders-b", "orders-c")
		r := NewRouter(store)

		for i := 0; i < 20; i++ {
			decision, err := r.Resolve(ctx, "orders", PolicyRandom)
			require.NoError(t, err)
			assert.Contains(t, []string{"orders-a", "orders-b", "orders-c"}, decision.Instance.InstanceID)
		}
	})
}

func TestLeastRecentBalancer(t *testing.T) {
	instances := []*registry.Instance{
		{InstanceID: "orders-a"},
		{InstanceID: "orders-b"},
		{InstanceID: "orders-c"},
	}

	t.Run("从未选中的实例按 ID 升序优先", func(t *testing.T) {
		b := NewLeastRecentBalancer()
		assert.Equal(t, "orders-a", b.Select(instances).InstanceID)
		assert.Equal(t, "orders-b", b.Select(instances).InstanceID)
		assert.Equal(t, "orders-c", b.Select(instances).InstanceID)
		// 一轮过后最早被选中的重新成为最久未选中
		assert.Equal(t, "orders-a", b.Select(instances).InstanceID)
	})

	t.Run("空列表返回 nil", func(t *testing.T) {
		b := NewLeastRecentBalancer()
		assert.Nil(t, b.Select(nil))
	})

	t.Run("下线实例的记录随快照淘汰", func(t *testing.T) {
		b := NewLeastRecentBalancer()

		// 实例不断换代，历史记录不应累积
		for i := 0; i < 100; i++ {
			replaced := []*registry.Instance{
				{InstanceID: fmt.Sprintf("orders-%03d", i)},
			}
			require.NotNil(t, b.Select(replaced))
		}
		assert.Len(t, b.lastPick, 1)

		// 回到稳定快照后只保留存活实例
		b.Select(instances)
		assert.Len(t, b.lastPick, len(instances))
	})
}

func TestRoundRobinBalancer(t *testing.T) {
	instances := []*registry.Instance{
		{InstanceID: "orders-a"},
		{InstanceID: "orders-b"},
	}

	b := NewRoundRobinBalancer()
	assert.Equal(t, "orders-a", b.Select(instances).InstanceID)
	assert.Equal(t, "orders-b", b.Select(instances).InstanceID)
	assert.Equal(t, "orders-a", b.Select(instances).InstanceID)
	assert.Nil(t, b.Select(nil))
}
