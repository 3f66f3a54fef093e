package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
)

// serviceGroup 单个服务的实例集合，持有自己的锁
// 不同服务之间的读写互不阻塞
type serviceGroup struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// MemoryStore 内存注册表存储
type MemoryStore struct {
	mu      sync.RWMutex
	groups  map[string]*serviceGroup
	version atomic.Uint64
	logger  *logger.CtxZapLogger
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[string]*serviceGroup),
		logger: logger.GetLogger("registry"),
	}
}

// getOrCreateGroup 获取服务分组，不存在则创建（双重检查锁）
func (s *MemoryStore) getOrCreateGroup(serviceName string) *serviceGroup {
	s.mu.RLock()
	g, ok := s.groups[serviceName]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.groups[serviceName]; ok {
		return g
	}
	g = &serviceGroup{instances: make(map[string]*Instance)}
	s.groups[serviceName] = g
	return g
}

// getGroup 只读获取服务分组
func (s *MemoryStore) getGroup(serviceName string) (*serviceGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[serviceName]
	return g, ok
}

// Register 注册实例
func (s *MemoryStore) Register(ctx context.Context, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		return errcode.ErrInvalidInstance.Wrap(err)
	}
	if inst.InstanceID == "" {
		inst.InstanceID = GenerateInstanceID(inst.ServiceName, inst.Address, inst.Port)
	}

	g := s.getOrCreateGroup(inst.ServiceName)

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.instances[inst.InstanceID]; ok && existing.State != StateDead {
		return errcode.ErrDuplicateInstance.WithMsgf(
			"instance %s of service %s is still %s", inst.InstanceID, inst.ServiceName, existing.State)
	}

	now := time.Now()
	fresh := inst.Clone()
	fresh.State = StateHealthy
	fresh.RegisteredAt = now
	fresh.LastHeartbeat = now
	g.instances[fresh.InstanceID] = fresh
	s.version.Add(1)

	s.logger.DebugCtx(ctx, "✅ 实例已注册",
		zap.String("service", fresh.ServiceName),
		zap.String("instance_id", fresh.InstanceID),
		zap.String("address", fresh.GetAddress()),
		zap.Uint64("version", s.version.Load()))
	return nil
}

// Deregister 注销实例
func (s *MemoryStore) Deregister(ctx context.Context, serviceName, instanceID string) error {
	g, ok := s.getGroup(serviceName)
	if !ok {
		return errcode.ErrInstanceNotFound.WithMsgf("service %s not found", serviceName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.instances[instanceID]; !ok {
		return errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}
	delete(g.instances, instanceID)
	s.version.Add(1)

	s.logger.DebugCtx(ctx, "实例已注销",
		zap.String("service", serviceName),
		zap.String("instance_id", instanceID))
	return nil
}

// Renew 心跳续约
func (s *MemoryStore) Renew(ctx context.Context, serviceName, instanceID string, now time.Time) (bool, error) {
	g, ok := s.getGroup(serviceName)
	if !ok {
		return false, errcode.ErrInstanceNotFound.WithMsgf("service %s not found", serviceName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instances[instanceID]
	if !ok || inst.State == StateDead {
		// DEAD 等同于已消亡，必须重新注册
		return false, errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}

	inst.LastHeartbeat = now
	if inst.State == StateSuspect {
		inst.State = StateHealthy
		s.version.Add(1)
		s.logger.DebugCtx(ctx, "💓 SUSPECT 实例心跳恢复",
			zap.String("service", serviceName),
			zap.String("instance_id", instanceID))
		return true, nil
	}
	return false, nil
}

// Lookup 返回 HEALTHY 实例，按实例 ID 升序
func (s *MemoryStore) Lookup(ctx context.Context, serviceName string) ([]*Instance, error) {
	g, ok := s.getGroup(serviceName)
	if !ok {
		return []*Instance{}, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Instance, 0, len(g.instances))
	for _, inst := range g.instances {
		if inst.State.Routable() {
			result = append(result, inst.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})
	return result, nil
}

// Snapshot 返回全部实例快照
func (s *MemoryStore) Snapshot(ctx context.Context) ([]*Instance, error) {
	s.mu.RLock()
	groups := make([]*serviceGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.RUnlock()

	var result []*Instance
	for _, g := range groups {
		g.mu.RLock()
		for _, inst := range g.instances {
			result = append(result, inst.Clone())
		}
		g.mu.RUnlock()
	}
	return result, nil
}

// Transition 条件状态迁移
func (s *MemoryStore) Transition(ctx context.Context, serviceName, instanceID string, from, to HealthState) (bool, error) {
	g, ok := s.getGroup(serviceName)
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inst, ok := g.instances[instanceID]
	if !ok || inst.State != from {
		return false, nil
	}
	inst.State = to
	s.version.Add(1)

	s.logger.DebugCtx(ctx, "实例状态迁移",
		zap.String("service", serviceName),
		zap.String("instance_id", instanceID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return true, nil
}

// Evict 清除实例（不存在时静默返回，巡检任务可安全重试）
func (s *MemoryStore) Evict(ctx context.Context, serviceName, instanceID string) error {
	g, ok := s.getGroup(serviceName)
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.instances[instanceID]; !ok {
		return nil
	}
	delete(g.instances, instanceID)
	s.version.Add(1)

	s.logger.DebugCtx(ctx, "🧹 实例已清除",
		zap.String("service", serviceName),
		zap.String("instance_id", instanceID))
	return nil
}

// Version 当前版本号
func (s *MemoryStore) Version() uint64 {
	return s.version.Load()
}

// Close 内存存储无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}
