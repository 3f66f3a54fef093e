package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/registry"
)

// RoutingDecision 单次解析结果（随用随弃，不做持久化）
type RoutingDecision struct {
	Instance *registry.Instance
	Policy   Policy

	// Version 解析时注册表的版本号，供调用方感知视图新旧
	Version uint64

	ResolvedAt time.Time
}

// Router 服务路由器
// 每次解析都从存储读取最新的 HEALTHY 实例快照，不做无界缓存
// 均衡器按 (服务, 策略) 惰性创建并复用，轮询游标因此跨请求保持
type Router struct {
	store  registry.Store
	mu     sync.RWMutex
	groups map[string]map[Policy]Balancer
	logger *logger.CtxZapLogger
}

// NewRouter 创建路由器
func NewRouter(store registry.Store) *Router {
	return &Router{
		store:  store,
		groups: make(map[string]map[Policy]Balancer),
		logger: logger.GetLogger("router"),
	}
}

// getOrCreateBalancer 获取均衡器，不存在则创建（双重检查锁）
func (r *Router) getOrCreateBalancer(serviceName string, policy Policy) (Balancer, error) {
	r.mu.RLock()
	if group, ok := r.groups[serviceName]; ok {
		if b, ok := group[policy]; ok {
			r.mu.RUnlock()
			return b, nil
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[serviceName]
	if !ok {
		group = make(map[Policy]Balancer)
		r.groups[serviceName] = group
	}
	if b, ok := group[policy]; ok {
		return b, nil
	}

	b, ok := NewBalancer(policy)
	if !ok {
		return nil, errcode.ErrUnknownPolicy.WithMsgf("unknown routing policy %q", policy)
	}
	group[policy] = b
	return b, nil
}

// Resolve 将逻辑服务名解析为一个具体的 HEALTHY 实例
// 快照读之外不持有任何锁，调用方拿到结果后自行发起网络调用
func (r *Router) Resolve(ctx context.Context, serviceName string, policy Policy) (*RoutingDecision, error) {
	balancer, err := r.getOrCreateBalancer(serviceName, policy)
	if err != nil {
		return nil, err
	}

	instances, err := r.store.Lookup(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	version := r.store.Version()

	if len(instances) == 0 {
		return nil, errcode.ErrNoHealthyInstance.WithMsgf(
			"no healthy instance for service %s", serviceName)
	}

	inst := balancer.Select(instances)
	if inst == nil {
		return nil, errcode.ErrNoHealthyInstance.WithMsgf(
			"no healthy instance for service %s", serviceName)
	}

	r.logger.DebugCtx(ctx, "🎯 路由解析完成",
		zap.String("service", serviceName),
		zap.String("policy", balancer.Name()),
		zap.String("instance_id", inst.InstanceID),
		zap.String("address", inst.GetAddress()),
		zap.Uint64("registry_version", version))

	return &RoutingDecision{
		Instance:   inst,
		Policy:     policy,
		Version:    version,
		ResolvedAt: time.Now(),
	}, nil
}
