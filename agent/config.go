package agent

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config 注册代理配置
type Config struct {
	// RegistryURL 注册中心地址，例如 "http://127.0.0.1:8500"
	RegistryURL string `mapstructure:"registry_url"`

	// ServiceName 本实例所属的逻辑服务名
	ServiceName string `mapstructure:"service_name"`

	// InstanceID 实例标识（留空则由注册中心生成）
	InstanceID string `mapstructure:"instance_id"`

	// Address 对外可达的 IP 或主机名
	Address string `mapstructure:"address"`

	// Port 服务端口
	Port int `mapstructure:"port"`

	// Weight 路由权重（可选）
	Weight int `mapstructure:"weight"`

	// Metadata 附加元数据（zone 等）
	Metadata map[string]string `mapstructure:"metadata"`

	// RenewInterval 心跳周期，应小于注册中心的 renew_interval 判定
	RenewInterval time.Duration `mapstructure:"renew_interval"`

	// RequestTimeout 单次注册中心请求超时
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RegisterBackoff 重新注册的初始退避
	RegisterBackoff time.Duration `mapstructure:"register_backoff"`

	// RegisterBackoffMax 重新注册的退避上限
	RegisterBackoffMax time.Duration `mapstructure:"register_backoff_max"`
}

// DefaultConfig 默认代理配置
func DefaultConfig() Config {
	return Config{
		RegistryURL:        "http://127.0.0.1:8500",
		RenewInterval:      10 * time.Second,
		RequestTimeout:     3 * time.Second,
		RegisterBackoff:    time.Second,
		RegisterBackoffMax: 30 * time.Second,
	}
}

// ApplyDefaults 补齐零值字段
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.RegistryURL == "" {
		c.RegistryURL = def.RegistryURL
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = def.RenewInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.RegisterBackoff <= 0 {
		c.RegisterBackoff = def.RegisterBackoff
	}
	if c.RegisterBackoffMax <= 0 {
		c.RegisterBackoffMax = def.RegisterBackoffMax
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RegistryURL, validation.Required),
		validation.Field(&c.ServiceName, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.Address, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("agent config invalid: %w", err)
	}
	return nil
}
