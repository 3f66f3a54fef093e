package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
)

// EtcdStoreConfig etcd 存储配置
type EtcdStoreConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// KeyPrefix 实例键前缀，实例键为 {prefix}/{service}/{instance_id}
	KeyPrefix string `mapstructure:"key_prefix"`

	// LeaseTTL 实例租约时长，租约过期即硬性兜底清除
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// ApplyDefaults 填充默认值
func (c *EtcdStoreConfig) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "/fabric/registry"
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 90 * time.Second
	}
}

// EtcdStore etcd 注册表存储
// 实例键绑定租约：续约即 KeepAliveOnce，租约过期是巡检之外的硬性兜底
// 版本号直接采用 etcd 集群 revision，天然全局单调
type EtcdStore struct {
	client   *clientv3.Client
	prefix   string
	leaseTTL int64
	version  atomic.Uint64
	logger   *logger.CtxZapLogger
}

// NewEtcdStore 创建 etcd 存储
func NewEtcdStore(cfg EtcdStoreConfig) (*EtcdStore, error) {
	cfg.ApplyDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	log := logger.GetLogger("registry")
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Logger:      log.GetZapLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	return &EtcdStore{
		client:   client,
		prefix:   cfg.KeyPrefix,
		leaseTTL: int64(cfg.LeaseTTL / time.Second),
		logger:   log,
	}, nil
}

func (s *EtcdStore) instanceKey(serviceName, instanceID string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, serviceName, instanceID)
}

func (s *EtcdStore) serviceKeyPrefix(serviceName string) string {
	return fmt.Sprintf("%s/%s/", s.prefix, serviceName)
}

// observeRevision 记录响应头中的集群 revision 作为版本号
func (s *EtcdStore) observeRevision(rev int64) {
	if rev <= 0 {
		return
	}
	for {
		cur := s.version.Load()
		if uint64(rev) <= cur || s.version.CompareAndSwap(cur, uint64(rev)) {
			return
		}
	}
}

// Register 注册实例
func (s *EtcdStore) Register(ctx context.Context, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		return errcode.ErrInvalidInstance.Wrap(err)
	}
	if inst.InstanceID == "" {
		inst.InstanceID = GenerateInstanceID(inst.ServiceName, inst.Address, inst.Port)
	}

	key := s.instanceKey(inst.ServiceName, inst.InstanceID)

	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}

	var guard clientv3.Cmp
	if len(getResp.Kvs) > 0 {
		var existing Instance
		if uerr := json.Unmarshal(getResp.Kvs[0].Value, &existing); uerr == nil && existing.State != StateDead {
			return errcode.ErrDuplicateInstance.WithMsgf(
				"instance %s of service %s is still %s", inst.InstanceID, inst.ServiceName, existing.State)
		}
		// DEAD 残留键允许覆盖，但要求期间无并发写入
		guard = clientv3.Compare(clientv3.ModRevision(key), "=", getResp.Kvs[0].ModRevision)
	} else {
		guard = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	}

	leaseResp, err := s.client.Grant(ctx, s.leaseTTL)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrapf(err, "grant lease")
	}

	now := time.Now()
	fresh := inst.Clone()
	fresh.State = StateHealthy
	fresh.RegisteredAt = now
	fresh.LastHeartbeat = now

	data, err := json.Marshal(fresh)
	if err != nil {
		return errcode.ErrInvalidInstance.Wrap(err)
	}

	txnResp, err := s.client.Txn(ctx).
		If(guard).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(leaseResp.ID))).
		Commit()
	if err != nil {
		s.client.Revoke(context.Background(), leaseResp.ID)
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	if !txnResp.Succeeded {
		s.client.Revoke(context.Background(), leaseResp.ID)
		return errcode.ErrDuplicateInstance.WithMsgf(
			"instance %s of service %s registered concurrently", inst.InstanceID, inst.ServiceName)
	}
	s.observeRevision(txnResp.Header.Revision)

	s.logger.DebugCtx(ctx, "✅ 实例已注册到 etcd",
		zap.String("service", inst.ServiceName),
		zap.String("instance_id", inst.InstanceID),
		zap.Int64("lease_id", int64(leaseResp.ID)))
	return nil
}

// Deregister 注销实例
func (s *EtcdStore) Deregister(ctx context.Context, serviceName, instanceID string) error {
	key := s.instanceKey(serviceName, instanceID)

	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	if len(getResp.Kvs) == 0 {
		return errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}

	delResp, err := s.client.Delete(ctx, key)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	s.observeRevision(delResp.Header.Revision)

	if lease := getResp.Kvs[0].Lease; lease != 0 {
		s.client.Revoke(context.Background(), clientv3.LeaseID(lease))
	}
	return nil
}

// Renew 心跳续约（租约 KeepAliveOnce + 状态修正）
func (s *EtcdStore) Renew(ctx context.Context, serviceName, instanceID string, now time.Time) (bool, error) {
	key := s.instanceKey(serviceName, instanceID)

	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if len(getResp.Kvs) == 0 {
		return false, errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}

	kv := getResp.Kvs[0]
	var inst Instance
	if err := json.Unmarshal(kv.Value, &inst); err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if inst.State == StateDead {
		return false, errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}

	if kv.Lease != 0 {
		if _, err := s.client.KeepAliveOnce(ctx, clientv3.LeaseID(kv.Lease)); err != nil {
			return false, errcode.ErrStoreUnavailable.Wrapf(err, "keepalive lease")
		}
	}

	recovered := inst.State == StateSuspect
	inst.LastHeartbeat = now
	if recovered {
		inst.State = StateHealthy
	}

	data, err := json.Marshal(&inst)
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}

	txnResp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(clientv3.LeaseID(kv.Lease)))).
		Commit()
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if !txnResp.Succeeded {
		// 并发写入赢了本次续约，下一次心跳会补上
		return false, nil
	}
	s.observeRevision(txnResp.Header.Revision)
	return recovered, nil
}

// Lookup 返回 HEALTHY 实例，按实例 ID 升序（etcd 按键序返回，天然有序）
func (s *EtcdStore) Lookup(ctx context.Context, serviceName string) ([]*Instance, error) {
	resp, err := s.client.Get(ctx, s.serviceKeyPrefix(serviceName),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	s.observeRevision(resp.Header.Revision)

	result := make([]*Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		if inst.State.Routable() {
			result = append(result, &inst)
		}
	}
	return result, nil
}

// Snapshot 返回全部实例快照
func (s *EtcdStore) Snapshot(ctx context.Context) ([]*Instance, error) {
	resp, err := s.client.Get(ctx, s.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	s.observeRevision(resp.Header.Revision)

	result := make([]*Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		result = append(result, &inst)
	}
	return result, nil
}

// Transition 条件状态迁移（ModRevision 比较保证 CAS 语义）
func (s *EtcdStore) Transition(ctx context.Context, serviceName, instanceID string, from, to HealthState) (bool, error) {
	key := s.instanceKey(serviceName, instanceID)

	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if len(getResp.Kvs) == 0 {
		return false, nil
	}

	kv := getResp.Kvs[0]
	var inst Instance
	if err := json.Unmarshal(kv.Value, &inst); err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if inst.State != from {
		return false, nil
	}

	inst.State = to
	data, err := json.Marshal(&inst)
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}

	txnResp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(clientv3.LeaseID(kv.Lease)))).
		Commit()
	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if !txnResp.Succeeded {
		return false, nil
	}
	s.observeRevision(txnResp.Header.Revision)
	return true, nil
}

// Evict 清除实例
func (s *EtcdStore) Evict(ctx context.Context, serviceName, instanceID string) error {
	key := s.instanceKey(serviceName, instanceID)

	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	if len(getResp.Kvs) == 0 {
		return nil
	}

	delResp, err := s.client.Delete(ctx, key)
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	s.observeRevision(delResp.Header.Revision)

	if lease := getResp.Kvs[0].Lease; lease != 0 {
		s.client.Revoke(context.Background(), clientv3.LeaseID(lease))
	}
	return nil
}

// Version 最近观察到的集群 revision
func (s *EtcdStore) Version() uint64 {
	return s.version.Load()
}

// Close 关闭客户端
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
