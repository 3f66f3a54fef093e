package registry

// 注册表生命周期事件，通过 event.Dispatcher 发布
const (
	EventInstanceRegistered   = "registry.instance.registered"
	EventInstanceDeregistered = "registry.instance.deregistered"
	EventInstanceSuspect      = "registry.instance.suspect"
	EventInstanceDead         = "registry.instance.dead"
	EventInstanceEvicted      = "registry.instance.evicted"
	EventInstanceRecovered    = "registry.instance.recovered"
)

// InstanceEvent 实例事件载荷
type InstanceEvent struct {
	ServiceName string      `json:"service_name"`
	InstanceID  string      `json:"instance_id"`
	Address     string      `json:"address"`
	State       HealthState `json:"state"`
	Version     uint64      `json:"version"`
}
