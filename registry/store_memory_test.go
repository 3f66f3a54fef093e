package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/errcode"
)

func newTestInstance(service, id string, port int) *Instance {
	return &Instance{
		ServiceName: service,
		InstanceID:  id,
		Address:     "10.0.0.1",
		Port:        port,
	}
}

func TestMemoryStore_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("注册成功并可查询", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, "orders-1", instances[0].InstanceID)
		assert.Equal(t, StateHealthy, instances[0].State)
		assert.False(t, instances[0].RegisteredAt.IsZero())
	})

	t.Run("存活实例重复注册返回冲突", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

		err := s.Register(ctx, newTestInstance("orders", "orders-1", 9100))
		assert.ErrorIs(t, err, errcode.ErrDuplicateInstance)
	})

	t.Run("DEAD 实例重复注册视为全新注册", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

		ok, err := s.Transition(ctx, "orders", "orders-1", StateHealthy, StateSuspect)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.Transition(ctx, "orders", "orders-1", StateSuspect, StateDead)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, StateHealthy, instances[0].State)
	})

	t.Run("非法实例返回校验错误", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.Register(ctx, &Instance{ServiceName: "orders"})
		assert.ErrorIs(t, err, errcode.ErrInvalidInstance)
	})

	t.Run("缺省实例ID自动生成", func(t *testing.T) {
		s := NewMemoryStore()
		inst := &Instance{ServiceName: "orders", Address: "10.0.0.1", Port: 9100}
		require.NoError(t, s.Register(ctx, inst))
		assert.Equal(t, "orders-10.0.0.1-9100", inst.InstanceID)
	})
}

func TestMemoryStore_Deregister(t *testing.T) {
	ctx := context.Background()

	t.Run("注销后不再出现在查询结果", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
		require.NoError(t, s.Deregister(ctx, "orders", "orders-1"))

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		assert.Empty(t, instances)
	})

	t.Run("注销不存在的实例返回 NotFound", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.Deregister(ctx, "orders", "orders-1")
		assert.ErrorIs(t, err, errcode.ErrInstanceNotFound)
	})
}

func TestMemoryStore_Renew(t *testing.T) {
	ctx := context.Background()

	t.Run("HEALTHY 实例续约只刷新心跳", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
		before := s.Version()

		recovered, err := s.Renew(ctx, "orders", "orders-1", time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, recovered)
		assert.Equal(t, before, s.Version(), "仅刷新心跳不应递增版本号")
	})

	t.Run("SUSPECT 实例续约恢复 HEALTHY", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
		_, err := s.Transition(ctx, "orders", "orders-1", StateHealthy, StateSuspect)
		require.NoError(t, err)
		before := s.Version()

		recovered, err := s.Renew(ctx, "orders", "orders-1", time.Now())
		require.NoError(t, err)
		assert.True(t, recovered)
		assert.Greater(t, s.Version(), before)

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, instances, 1)
	})

	t.Run("DEAD 实例续约返回 NotFound", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
		_, err := s.Transition(ctx, "orders", "orders-1", StateHealthy, StateSuspect)
		require.NoError(t, err)
		_, err = s.Transition(ctx, "orders", "orders-1", StateSuspect, StateDead)
		require.NoError(t, err)

		_, err = s.Renew(ctx, "orders", "orders-1", time.Now())
		assert.ErrorIs(t, err, errcode.ErrInstanceNotFound)
	})

	t.Run("未知实例续约返回 NotFound", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Renew(ctx, "orders", "orders-1", time.Now())
		assert.ErrorIs(t, err, errcode.ErrInstanceNotFound)
	})
}

func TestMemoryStore_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("按实例ID升序返回", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-c", 9102)))
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-a", 9100)))
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-b", 9101)))

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, instances, 3)
		assert.Equal(t, "orders-a", instances[0].InstanceID)
		assert.Equal(t, "orders-b", instances[1].InstanceID)
		assert.Equal(t, "orders-c", instances[2].InstanceID)
	})

	t.Run("SUSPECT 实例不参与路由", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
		require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-2", 9101)))
		_, err := s.Transition(ctx, "orders", "orders-1", StateHealthy, StateSuspect)
		require.NoError(t, err)

		instances, err := s.Lookup(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, instances, 1)
		assert.Equal(t, "orders-2", instances[0].InstanceID)
	})

	t.Run("未知服务返回空列表而非错误", func(t *testing.T) {
		s := NewMemoryStore()
		instances, err := s.Lookup(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, instances)
	})
}

func TestMemoryStore_Version(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v0 := s.Version()
	require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))
	v1 := s.Version()
	assert.Greater(t, v1, v0)

	ok, err := s.Transition(ctx, "orders", "orders-1", StateHealthy, StateSuspect)
	require.NoError(t, err)
	require.True(t, ok)
	v2 := s.Version()
	assert.Greater(t, v2, v1)

	require.NoError(t, s.Evict(ctx, "orders", "orders-1"))
	assert.Greater(t, s.Version(), v2)
}

func TestMemoryStore_Transition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

	t.Run("from 不匹配时不生效", func(t *testing.T) {
		ok, err := s.Transition(ctx, "orders", "orders-1", StateSuspect, StateDead)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("实例不存在时不生效", func(t *testing.T) {
		ok, err := s.Transition(ctx, "orders", "ghost", StateHealthy, StateSuspect)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_Evict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Register(ctx, newTestInstance("orders", "orders-1", 9100)))

	require.NoError(t, s.Evict(ctx, "orders", "orders-1"))
	// 幂等：重复清除静默成功
	require.NoError(t, s.Evict(ctx, "orders", "orders-1"))

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}
