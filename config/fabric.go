package config

import (
	"fmt"

	"github.com/KOMKZ/go-fabric/breaker"
	"github.com/KOMKZ/go-fabric/event"
	"github.com/KOMKZ/go-fabric/gateway"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/registry"
	"github.com/KOMKZ/go-fabric/server"
	"github.com/KOMKZ/go-fabric/telemetry"
)

// 注册表存储后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

// FabricConfig 应用级配置，聚合各子系统的配置段
type FabricConfig struct {
	App       AppConfig              `mapstructure:"app"`
	Logger    logger.ManagerConfig   `mapstructure:"logger"`
	Registry  RegistryConfig         `mapstructure:"registry"`
	Heartbeat registry.MonitorConfig `mapstructure:"heartbeat"`
	Breaker   breaker.Config         `mapstructure:"breaker"`
	Server    server.Config          `mapstructure:"server"`
	Gateway   gateway.Config         `mapstructure:"gateway"`
	Telemetry telemetry.Config       `mapstructure:"telemetry"`
	Event     EventConfig            `mapstructure:"event"`
}

// AppConfig 应用标识
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// RegistryConfig 注册表存储配置
type RegistryConfig struct {
	// Backend 存储后端：memory / redis / etcd
	Backend string `mapstructure:"backend"`

	Redis registry.RedisStoreConfig `mapstructure:"redis"`
	Etcd  registry.EtcdStoreConfig  `mapstructure:"etcd"`
}

// EventConfig 事件分发配置
type EventConfig struct {
	// KafkaEnabled 是否把注册表与熔断事件发布到 Kafka
	KafkaEnabled bool `mapstructure:"kafka_enabled"`

	// Topic 事件发布的 Kafka topic
	Topic string `mapstructure:"topic"`

	Kafka event.KafkaConfig `mapstructure:"kafka"`
}

// LoadFabricConfig 从 Loader 解出应用配置并补齐默认值
func LoadFabricConfig(loader *Loader) (*FabricConfig, error) {
	cfg := &FabricConfig{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal fabric config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults 补齐各配置段默认值
func (c *FabricConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fabric"
	}
	if c.App.Env == "" {
		c.App.Env = GetEnv()
	}
	c.Logger.ApplyDefaults()
	if c.Logger.AppName == "" {
		c.Logger.AppName = c.App.Name
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = BackendMemory
	}
	c.Heartbeat.ApplyDefaults()
	if !c.Breaker.Enabled && c.Breaker.EventBusBuffer == 0 && len(c.Breaker.Targets) == 0 {
		c.Breaker = breaker.DefaultConfig()
	}
	c.Server.ApplyDefaults()
	c.Gateway.ApplyDefaults()
	tdef := telemetry.DefaultConfig()
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.App.Name
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = tdef.ServiceVersion
	}
	if c.Telemetry.Exporter.Type == "" {
		c.Telemetry.Exporter = tdef.Exporter
	}
	if c.Telemetry.Sampler.Type == "" {
		c.Telemetry.Sampler = tdef.Sampler
	}
	if c.Telemetry.Span.MaxAttributes == 0 {
		c.Telemetry.Span = tdef.Span
	}
	if c.Telemetry.Batch.MaxQueueSize == 0 {
		c.Telemetry.Batch = tdef.Batch
	}
	if c.Event.Topic == "" {
		c.Event.Topic = "fabric.events"
	}
	c.Event.Kafka.ApplyDefaults()
}

// Validate 校验各配置段
func (c *FabricConfig) Validate() error {
	switch c.Registry.Backend {
	case BackendMemory, BackendRedis, BackendEtcd:
	default:
		return fmt.Errorf("unknown registry backend: %s", c.Registry.Backend)
	}
	if c.Registry.Backend == BackendRedis && c.Registry.Redis.Addr == "" {
		return fmt.Errorf("registry backend redis requires redis.addr")
	}
	if c.Registry.Backend == BackendEtcd && len(c.Registry.Etcd.Endpoints) == 0 {
		return fmt.Errorf("registry backend etcd requires etcd.endpoints")
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return fmt.Errorf("heartbeat config: %w", err)
	}
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry config: %w", err)
	}
	if c.Event.KafkaEnabled && len(c.Event.Kafka.Brokers) == 0 {
		return fmt.Errorf("event kafka enabled but no brokers configured")
	}
	return nil
}

// NewStore 按配置创建注册表存储
func (c *RegistryConfig) NewStore() (registry.Store, error) {
	switch c.Backend {
	case BackendMemory:
		return registry.NewMemoryStore(), nil
	case BackendRedis:
		return registry.NewRedisStore(c.Redis)
	case BackendEtcd:
		return registry.NewEtcdStore(c.Etcd)
	default:
		return nil, fmt.Errorf("unknown registry backend: %s", c.Backend)
	}
}
