package router

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-fabric/registry"
)

// Policy 实例选择策略
type Policy string

const (
	PolicyRoundRobin  Policy = "ROUND_ROBIN"
	PolicyRandom      Policy = "RANDOM"
	PolicyLeastRecent Policy = "LEAST_RECENT"
)

// Balancer 负载均衡器接口
// 入参实例列表已按实例 ID 升序排列，实现可依赖该顺序保证平局决策稳定
type Balancer interface {
	// Select 选择一个服务实例
	Select(instances []*registry.Instance) *registry.Instance

	// Name 均衡器名称
	Name() string
}

// RoundRobinBalancer 轮询均衡器（每个服务一个游标）
type RoundRobinBalancer struct {
	counter uint64
}

// NewRoundRobinBalancer 创建轮询均衡器
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Select 轮询选择实例
func (b *RoundRobinBalancer) Select(instances []*registry.Instance) *registry.Instance {
	if len(instances) == 0 {
		return nil
	}

	// 原子递增计数器
	idx := atomic.AddUint64(&b.counter, 1) - 1
	return instances[int(idx)%len(instances)]
}

// Name 均衡器名称
func (b *RoundRobinBalancer) Name() string {
	return string(PolicyRoundRobin)
}

// RandomBalancer 随机均衡器
type RandomBalancer struct {
	rand *rand.Rand
	mu   sync.Mutex
}

// NewRandomBalancer 创建随机均衡器
func NewRandomBalancer() *RandomBalancer {
	return &RandomBalancer{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select 随机选择实例
func (b *RandomBalancer) Select(instances []*registry.Instance) *registry.Instance {
	if len(instances) == 0 {
		return nil
	}

	b.mu.Lock()
	idx := b.rand.Intn(len(instances))
	b.mu.Unlock()
	return instances[idx]
}

// Name 均衡器名称
func (b *RandomBalancer) Name() string {
	return string(PolicyRandom)
}

// LeastRecentBalancer 最久未选中均衡器
// 记录每个实例最近一次被选中的序号，优先选择序号最小的
// 从未被选中的实例序号为 0；序号相同时列表顺序（实例 ID 升序）决定胜者
type LeastRecentBalancer struct {
	mu       sync.Mutex
	seq      uint64
	lastPick map[string]uint64
}

// NewLeastRecentBalancer 创建最久未选中均衡器
func NewLeastRecentBalancer() *LeastRecentBalancer {
	return &LeastRecentBalancer{
		lastPick: make(map[string]uint64),
	}
}

// Select 选择最久未被选中的实例
func (b *LeastRecentBalancer) Select(instances []*registry.Instance) *registry.Instance {
	if len(instances) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// 只保留当前快照内的记录，被摘除的实例不再占用内存
	live := make(map[string]uint64, len(instances))
	var chosen *registry.Instance
	var chosenSeq uint64
	for _, inst := range instances {
		s := b.lastPick[inst.InstanceID]
		live[inst.InstanceID] = s
		if chosen == nil || s < chosenSeq {
			chosen = inst
			chosenSeq = s
		}
	}
	b.lastPick = live

	b.seq++
	b.lastPick[chosen.InstanceID] = b.seq
	return chosen
}

// Name 均衡器名称
func (b *LeastRecentBalancer) Name() string {
	return string(PolicyLeastRecent)
}

// NewBalancer 根据策略创建均衡器
func NewBalancer(policy Policy) (Balancer, bool) {
	switch policy {
	case PolicyRoundRobin, "":
		return NewRoundRobinBalancer(), true
	case PolicyRandom:
		return NewRandomBalancer(), true
	case PolicyLeastRecent:
		return NewLeastRecentBalancer(), true
	default:
		return nil, false
	}
}
