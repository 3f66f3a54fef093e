package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/event"
	"github.com/KOMKZ/go-fabric/logger"
)

// MonitorConfig 心跳巡检配置
type MonitorConfig struct {
	// RenewInterval 实例应上报心跳的周期（即 TTL）
	RenewInterval time.Duration `mapstructure:"renew_interval"`

	// SweepInterval 巡检周期，与请求流量无关
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// SuspectAfter 错过多少个心跳周期进入 SUSPECT
	SuspectAfter int `mapstructure:"suspect_after"`

	// EvictAfter 错过多少个心跳周期判定 DEAD 并等待清除
	EvictAfter int `mapstructure:"evict_after"`
}

// DefaultMonitorConfig 默认巡检配置
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		RenewInterval: 30 * time.Second,
		SweepInterval: 10 * time.Second,
		SuspectAfter:  1,
		EvictAfter:    3,
	}
}

// ApplyDefaults 填充默认值
func (c *MonitorConfig) ApplyDefaults() {
	def := DefaultMonitorConfig()
	if c.RenewInterval <= 0 {
		c.RenewInterval = def.RenewInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.SuspectAfter <= 0 {
		c.SuspectAfter = def.SuspectAfter
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = def.EvictAfter
	}
}

// Validate 校验配置
func (c *MonitorConfig) Validate() error {
	if c.EvictAfter <= c.SuspectAfter {
		return fmt.Errorf("evict_after (%d) must be greater than suspect_after (%d)",
			c.EvictAfter, c.SuspectAfter)
	}
	return nil
}

// Monitor 心跳监控器
// 接收续约请求并周期巡检实例健康状态:
// HEALTHY --超时--> SUSPECT --宽限期满--> DEAD --下次巡检--> 清除
type Monitor struct {
	store      Store
	config     MonitorConfig
	scheduler  gocron.Scheduler
	dispatcher event.Dispatcher
	logger     *logger.CtxZapLogger
	now        func() time.Time
}

// MonitorOption 监控器选项
type MonitorOption func(*Monitor)

// WithDispatcher 设置事件分发器，巡检状态变化会发布生命周期事件
func WithDispatcher(d event.Dispatcher) MonitorOption {
	return func(m *Monitor) {
		m.dispatcher = d
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor 创建心跳监控器
func NewMonitor(store Store, config MonitorConfig, opts ...MonitorOption) (*Monitor, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		store:  store,
		config: config,
		logger: logger.GetLogger("registry"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler failed: %w", err)
	}
	m.scheduler = scheduler

	return m, nil
}

// Start 启动周期巡检
func (m *Monitor) Start() error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.config.SweepInterval),
		gocron.NewTask(func() {
			m.Sweep(context.Background())
		}),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep job failed: %w", err)
	}

	m.scheduler.Start()
	m.logger.Info("🔍 心跳巡检已启动",
		zap.Duration("renew_interval", m.config.RenewInterval),
		zap.Duration("sweep_interval", m.config.SweepInterval),
		zap.Int("suspect_after", m.config.SuspectAfter),
		zap.Int("evict_after", m.config.EvictAfter))
	return nil
}

// Stop 停止巡检
func (m *Monitor) Stop() error {
	return m.scheduler.Shutdown()
}

// Renew 心跳续约入口
func (m *Monitor) Renew(ctx context.Context, serviceName, instanceID string) error {
	recovered, err := m.store.Renew(ctx, serviceName, instanceID, m.now())
	if err != nil {
		return err
	}
	if recovered {
		m.publish(ctx, EventInstanceRecovered, serviceName, instanceID, "", StateHealthy)
	}
	return nil
}

// AnnounceRegistered 注册成功后由 API 层调用，发布成员变更事件
func (m *Monitor) AnnounceRegistered(ctx context.Context, inst *Instance) {
	m.publish(ctx, EventInstanceRegistered, inst.ServiceName, inst.InstanceID, inst.GetAddress(), StateHealthy)
}

// AnnounceDeregistered 注销成功后由 API 层调用
func (m *Monitor) AnnounceDeregistered(ctx context.Context, serviceName, instanceID string) {
	m.publish(ctx, EventInstanceDeregistered, serviceName, instanceID, "", StateDead)
}

// Sweep 单轮巡检：读取快照后按条件迁移状态（不在网络调用中持有任何锁）
func (m *Monitor) Sweep(ctx context.Context) {
	snapshot, err := m.store.Snapshot(ctx)
	if err != nil {
		m.logger.ErrorCtx(ctx, "巡检读取快照失败", zap.Error(err))
		return
	}

	now := m.now()
	suspectAfter := time.Duration(m.config.SuspectAfter) * m.config.RenewInterval
	evictAfter := time.Duration(m.config.EvictAfter) * m.config.RenewInterval

	for _, inst := range snapshot {
		elapsed := now.Sub(inst.LastHeartbeat)

		switch inst.State {
		case StateDead:
			// 上一轮判定 DEAD 的实例本轮清除
			if err := m.store.Evict(ctx, inst.ServiceName, inst.InstanceID); err != nil {
				m.logger.ErrorCtx(ctx, "清除 DEAD 实例失败",
					zap.String("service", inst.ServiceName),
					zap.String("instance_id", inst.InstanceID),
					zap.Error(err))
				continue
			}
			m.publish(ctx, EventInstanceEvicted, inst.ServiceName, inst.InstanceID, inst.GetAddress(), StateDead)

		case StateSuspect:
			if elapsed < evictAfter {
				continue
			}
			ok, err := m.store.Transition(ctx, inst.ServiceName, inst.InstanceID, StateSuspect, StateDead)
			if err != nil || !ok {
				// 续约赢了竞态，实例已恢复
				continue
			}
			m.logger.WarnCtx(ctx, "💀 实例判定为 DEAD",
				zap.String("service", inst.ServiceName),
				zap.String("instance_id", inst.InstanceID),
				zap.Duration("since_heartbeat", elapsed))
			m.publish(ctx, EventInstanceDead, inst.ServiceName, inst.InstanceID, inst.GetAddress(), StateDead)

		case StateHealthy:
			if elapsed < suspectAfter {
				continue
			}
			ok, err := m.store.Transition(ctx, inst.ServiceName, inst.InstanceID, StateHealthy, StateSuspect)
			if err != nil || !ok {
				continue
			}
			m.logger.WarnCtx(ctx, "⚠️ 实例心跳超时，进入 SUSPECT",
				zap.String("service", inst.ServiceName),
				zap.String("instance_id", inst.InstanceID),
				zap.Duration("since_heartbeat", elapsed))
			m.publish(ctx, EventInstanceSuspect, inst.ServiceName, inst.InstanceID, inst.GetAddress(), StateSuspect)
		}
	}
}

// publish 发布生命周期事件（未配置分发器时为空操作）
func (m *Monitor) publish(ctx context.Context, name, serviceName, instanceID, address string, state HealthState) {
	if m.dispatcher == nil {
		return
	}
	payload := InstanceEvent{
		ServiceName: serviceName,
		InstanceID:  instanceID,
		Address:     address,
		State:       state,
		Version:     m.store.Version(),
	}
	if err := m.dispatcher.Dispatch(ctx, event.NewEvent(name, payload), event.WithDispatchAsync()); err != nil {
		m.logger.WarnCtx(ctx, "发布实例事件失败",
			zap.String("event", name),
			zap.Error(err))
	}
}
