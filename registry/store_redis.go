package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/logger"
)

// RedisStoreConfig Redis 存储配置
type RedisStoreConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// KeyPrefix 所有注册表键的前缀
	KeyPrefix string `mapstructure:"key_prefix"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ApplyDefaults 填充默认值
func (c *RedisStoreConfig) ApplyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "fabric:registry"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// RedisStore Redis 注册表存储
// 多个注册中心节点共享同一份实例状态时使用
// 每个服务一个 HASH（field=实例ID, value=实例 JSON），服务名集合单独维护
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *logger.CtxZapLogger
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	cfg.ApplyDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient 复用已有客户端创建存储（测试注入 miniredis 客户端）
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fabric:registry"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.GetLogger("registry"),
	}
}

func (s *RedisStore) serviceKey(serviceName string) string {
	return fmt.Sprintf("%s:svc:%s", s.prefix, serviceName)
}

func (s *RedisStore) servicesKey() string {
	return s.prefix + ":services"
}

func (s *RedisStore) versionKey() string {
	return s.prefix + ":version"
}

func (s *RedisStore) bumpVersion(ctx context.Context, pipe redis.Pipeliner) {
	pipe.Incr(ctx, s.versionKey())
}

// Register 注册实例
func (s *RedisStore) Register(ctx context.Context, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		return errcode.ErrInvalidInstance.Wrap(err)
	}
	if inst.InstanceID == "" {
		inst.InstanceID = GenerateInstanceID(inst.ServiceName, inst.Address, inst.Port)
	}

	key := s.serviceKey(inst.ServiceName)

	// WATCH 保证重复检查和写入的原子性
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, inst.InstanceID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var existing Instance
			if uerr := json.Unmarshal([]byte(raw), &existing); uerr == nil && existing.State != StateDead {
				return errcode.ErrDuplicateInstance.WithMsgf(
					"instance %s of service %s is still %s", inst.InstanceID, inst.ServiceName, existing.State)
			}
		}

		now := time.Now()
		fresh := inst.Clone()
		fresh.State = StateHealthy
		fresh.RegisteredAt = now
		fresh.LastHeartbeat = now

		data, err := json.Marshal(fresh)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fresh.InstanceID, data)
			pipe.SAdd(ctx, s.servicesKey(), fresh.ServiceName)
			s.bumpVersion(ctx, pipe)
			return nil
		})
		return err
	}, key)

	if err != nil {
		var layered *errcode.LayeredError
		if errors.As(err, &layered) {
			return err
		}
		return errcode.ErrStoreUnavailable.Wrap(err)
	}

	s.logger.DebugCtx(ctx, "✅ 实例已注册到 Redis",
		zap.String("service", inst.ServiceName),
		zap.String("instance_id", inst.InstanceID))
	return nil
}

// Deregister 注销实例
func (s *RedisStore) Deregister(ctx context.Context, serviceName, instanceID string) error {
	key := s.serviceKey(serviceName)

	removed, err := s.client.HDel(ctx, key, instanceID).Result()
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	if removed == 0 {
		return errcode.ErrInstanceNotFound.WithMsgf(
			"instance %s of service %s not found", instanceID, serviceName)
	}
	if err := s.client.Incr(ctx, s.versionKey()).Err(); err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	return nil
}

// Renew 心跳续约
func (s *RedisStore) Renew(ctx context.Context, serviceName, instanceID string, now time.Time) (bool, error) {
	key := s.serviceKey(serviceName)
	recovered := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, instanceID).Result()
		if errors.Is(err, redis.Nil) {
			return errcode.ErrInstanceNotFound.WithMsgf(
				"instance %s of service %s not found", instanceID, serviceName)
		}
		if err != nil {
			return err
		}

		var inst Instance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			return err
		}
		if inst.State == StateDead {
			return errcode.ErrInstanceNotFound.WithMsgf(
				"instance %s of service %s not found", instanceID, serviceName)
		}

		inst.LastHeartbeat = now
		if inst.State == StateSuspect {
			inst.State = StateHealthy
			recovered = true
		}

		data, err := json.Marshal(&inst)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, instanceID, data)
			if recovered {
				s.bumpVersion(ctx, pipe)
			}
			return nil
		})
		return err
	}, key)

	if err != nil {
		var layered *errcode.LayeredError
		if errors.As(err, &layered) {
			return false, err
		}
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	return recovered, nil
}

// Lookup 返回 HEALTHY 实例，按实例 ID 升序
func (s *RedisStore) Lookup(ctx context.Context, serviceName string) ([]*Instance, error) {
	raw, err := s.client.HGetAll(ctx, s.serviceKey(serviceName)).Result()
	if err != nil {
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}

	result := make([]*Instance, 0, len(raw))
	for _, v := range raw {
		var inst Instance
		if err := json.Unmarshal([]byte(v), &inst); err != nil {
			continue
		}
		if inst.State.Routable() {
			result = append(result, &inst)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})
	return result, nil
}

// Snapshot 返回全部实例快照
func (s *RedisStore) Snapshot(ctx context.Context) ([]*Instance, error) {
	services, err := s.client.SMembers(ctx, s.servicesKey()).Result()
	if err != nil {
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}

	var result []*Instance
	for _, svc := range services {
		raw, err := s.client.HGetAll(ctx, s.serviceKey(svc)).Result()
		if err != nil {
			return nil, errcode.ErrStoreUnavailable.Wrap(err)
		}
		for _, v := range raw {
			var inst Instance
			if err := json.Unmarshal([]byte(v), &inst); err != nil {
				continue
			}
			result = append(result, &inst)
		}
	}
	return result, nil
}

// Transition 条件状态迁移
func (s *RedisStore) Transition(ctx context.Context, serviceName, instanceID string, from, to HealthState) (bool, error) {
	key := s.serviceKey(serviceName)
	applied := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, instanceID).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var inst Instance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			return err
		}
		if inst.State != from {
			return nil
		}

		inst.State = to
		data, err := json.Marshal(&inst)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, instanceID, data)
			s.bumpVersion(ctx, pipe)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, key)

	if err != nil {
		return false, errcode.ErrStoreUnavailable.Wrap(err)
	}
	return applied, nil
}

// Evict 清除实例
func (s *RedisStore) Evict(ctx context.Context, serviceName, instanceID string) error {
	removed, err := s.client.HDel(ctx, s.serviceKey(serviceName), instanceID).Result()
	if err != nil {
		return errcode.ErrStoreUnavailable.Wrap(err)
	}
	if removed > 0 {
		if err := s.client.Incr(ctx, s.versionKey()).Err(); err != nil {
			return errcode.ErrStoreUnavailable.Wrap(err)
		}
	}
	return nil
}

// Version 当前版本号（读失败时返回 0，调用方会在下次解析时重读）
func (s *RedisStore) Version() uint64 {
	v, err := s.client.Get(context.Background(), s.versionKey()).Uint64()
	if err != nil {
		return 0
	}
	return v
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}
