package registry

import (
	"context"
	"time"
)

// Store 注册表存储接口
// 内存实现是权威语义，redis/etcd 实现供多节点注册中心共享状态
type Store interface {
	// Register 注册实例
	// 同名实例仍存活时返回 ErrDuplicateInstance；DEAD 实例视为已消亡，允许全新注册
	Register(ctx context.Context, inst *Instance) error

	// Deregister 主动注销实例，不存在时返回 ErrInstanceNotFound
	Deregister(ctx context.Context, serviceName, instanceID string) error

	// Renew 心跳续约
	// HEALTHY 仅刷新心跳时间；SUSPECT 恢复为 HEALTHY（recovered=true）；
	// DEAD 或不存在返回 ErrInstanceNotFound
	Renew(ctx context.Context, serviceName, instanceID string, now time.Time) (recovered bool, err error)

	// Lookup 返回该服务全部 HEALTHY 实例，按实例 ID 升序
	// 未知服务返回空列表而非错误
	Lookup(ctx context.Context, serviceName string) ([]*Instance, error)

	// Snapshot 返回全部实例的快照（巡检任务使用）
	Snapshot(ctx context.Context) ([]*Instance, error)

	// Transition 条件状态迁移（from 不匹配时不生效，返回 false）
	Transition(ctx context.Context, serviceName, instanceID string, from, to HealthState) (bool, error)

	// Evict 清除实例（巡检任务清理 DEAD 实例）
	Evict(ctx context.Context, serviceName, instanceID string) error

	// Version 当前注册表版本号，任何成员或健康状态变化都会递增
	Version() uint64

	// Close 释放底层资源
	Close() error
}
