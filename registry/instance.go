package registry

import (
	"fmt"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// HealthState 实例健康状态
type HealthState string

const (
	// StateHealthy 心跳正常，可参与路由
	StateHealthy HealthState = "HEALTHY"

	// StateSuspect 心跳超时但仍在宽限期内，暂不参与路由
	StateSuspect HealthState = "SUSPECT"

	// StateDead 超过宽限期，等待清除；DEAD 不可恢复，必须重新注册
	StateDead HealthState = "DEAD"
)

// Routable 该状态是否参与路由
func (s HealthState) Routable() bool {
	return s == StateHealthy
}

// Instance 服务实例
type Instance struct {
	ServiceName string            `json:"service_name" mapstructure:"service_name"`
	InstanceID  string            `json:"instance_id" mapstructure:"instance_id"`
	Address     string            `json:"address" mapstructure:"address"` // IP 或主机名
	Port        int               `json:"port" mapstructure:"port"`
	Metadata    map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
	Weight      int               `json:"weight,omitempty" mapstructure:"weight"`

	State         HealthState `json:"state"`
	RegisteredAt  time.Time   `json:"registered_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

// Validate 校验注册请求的实例字段
func (i *Instance) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.ServiceName, validation.Required, validation.Length(1, 128)),
		validation.Field(&i.Address, validation.Required),
		validation.Field(&i.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&i.Weight, validation.Min(0)),
	)
}

// GetAddress 返回 host:port 形式的完整地址
func (i *Instance) GetAddress() string {
	return FormatInstanceAddress(i.Address, i.Port)
}

// Clone 深拷贝实例（快照读使用，避免外部修改内部状态）
func (i *Instance) Clone() *Instance {
	c := *i
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// FormatInstanceAddress Format instance address
func FormatInstanceAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseInstanceAddress Parse instance address
// Format: "127.0.0.1:9002" -> ("127.0.0.1", 9002)
func ParseInstanceAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address format: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}

	return host, port, nil
}

// GenerateInstanceID Generate instance ID
func GenerateInstanceID(serviceName, address string, port int) string {
	return fmt.Sprintf("%s-%s-%d", serviceName, address, port)
}
