package breaker

import (
	"time"
)

// Config 熔断器配置
type Config struct {
	// Enabled 是否启用熔断器（false 时直接透传，不进行熔断判断）
	Enabled bool `mapstructure:"enabled"`

	// EventBusBuffer 事件总线并发通知容量
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	// Default 默认目标配置
	Default TargetConfig `mapstructure:"default"`

	// Targets 目标级配置（覆盖 Default），键为目标标识
	Targets map[string]TargetConfig `mapstructure:"targets"`
}

// TargetConfig 目标级配置
type TargetConfig struct {
	// Strategy 熔断策略名称: error_rate, slow_call_rate, consecutive_failures
	Strategy string `mapstructure:"strategy"`

	// MinRequests 最小请求数（避免小流量误判）
	MinRequests int `mapstructure:"min_requests"`

	// ErrorRateThreshold 错误率阈值 (0.0-1.0)
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold"`

	// SlowCallThreshold 慢调用阈值
	SlowCallThreshold time.Duration `mapstructure:"slow_call_threshold"`

	// SlowRateThreshold 慢调用比例阈值 (0.0-1.0)
	SlowRateThreshold float64 `mapstructure:"slow_rate_threshold"`

	// ConsecutiveFailures 连续失败次数阈值
	ConsecutiveFailures int `mapstructure:"consecutive_failures"`

	// WaitDuration Open 状态持续时间，超过后进入半开试探
	WaitDuration time.Duration `mapstructure:"wait_duration"`

	// TrialCalls 半开状态允许的试探请求数
	TrialCalls int `mapstructure:"trial_calls"`

	// WindowCalls 滑动窗口容纳的最大调用数
	WindowCalls int `mapstructure:"window_calls"`

	// WindowDuration 滑动窗口的最大时间跨度
	// 窗口按调用数和时间双重裁剪，先到为准
	WindowDuration time.Duration `mapstructure:"window_duration"`

	// CallTimeout 调用超时（0 表示只受调用方 context 约束）
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		EventBusBuffer: 500,
		Default:        DefaultTargetConfig(),
		Targets:        make(map[string]TargetConfig),
	}
}

// DefaultTargetConfig 返回默认目标配置
func DefaultTargetConfig() TargetConfig {
	return TargetConfig{
		Strategy:            "error_rate",
		MinRequests:         10,
		ErrorRateThreshold:  0.5,
		SlowCallThreshold:   time.Second,
		SlowRateThreshold:   0.5,
		ConsecutiveFailures: 5,
		WaitDuration:        5 * time.Second,
		TrialCalls:          1,
		WindowCalls:         10,
		WindowDuration:      30 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // 未启用，不需要验证
	}

	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = 500
	}

	if err := c.Default.Validate(); err != nil {
		return err
	}

	// 合并并验证目标配置
	for name, cfg := range c.Targets {
		merged := c.Default.Merge(cfg)
		c.Targets[name] = merged

		if err := merged.Validate(); err != nil {
			return &ValidationError{
				Target: name,
				Err:    err,
			}
		}
	}

	return nil
}

// Merge 合并配置（override 覆盖默认值）
func (tc TargetConfig) Merge(override TargetConfig) TargetConfig {
	result := tc // 从默认配置开始

	// 只覆盖非零值
	if override.Strategy != "" {
		result.Strategy = override.Strategy
	}
	if override.MinRequests > 0 {
		result.MinRequests = override.MinRequests
	}
	if override.ErrorRateThreshold > 0 {
		result.ErrorRateThreshold = override.ErrorRateThreshold
	}
	if override.SlowCallThreshold > 0 {
		result.SlowCallThreshold = override.SlowCallThreshold
	}
	if override.SlowRateThreshold > 0 {
		result.SlowRateThreshold = override.SlowRateThreshold
	}
	if override.ConsecutiveFailures > 0 {
		result.ConsecutiveFailures = override.ConsecutiveFailures
	}
	if override.WaitDuration > 0 {
		result.WaitDuration = override.WaitDuration
	}
	if override.TrialCalls > 0 {
		result.TrialCalls = override.TrialCalls
	}
	if override.WindowCalls > 0 {
		result.WindowCalls = override.WindowCalls
	}
	if override.WindowDuration > 0 {
		result.WindowDuration = override.WindowDuration
	}
	if override.CallTimeout > 0 {
		result.CallTimeout = override.CallTimeout
	}

	return result
}

// Validate 验证目标配置
func (tc *TargetConfig) Validate() error {
	if tc.MinRequests < 0 {
		return &ValidationError{Field: "MinRequests", Message: "must be >= 0"}
	}

	if tc.ErrorRateThreshold < 0 || tc.ErrorRateThreshold > 1 {
		return &ValidationError{Field: "ErrorRateThreshold", Message: "must be between 0.0 and 1.0"}
	}

	if tc.SlowRateThreshold < 0 || tc.SlowRateThreshold > 1 {
		return &ValidationError{Field: "SlowRateThreshold", Message: "must be between 0.0 and 1.0"}
	}

	if tc.ConsecutiveFailures < 0 {
		return &ValidationError{Field: "ConsecutiveFailures", Message: "must be >= 0"}
	}

	if tc.WaitDuration <= 0 {
		return &ValidationError{Field: "WaitDuration", Message: "must be > 0"}
	}

	if tc.TrialCalls <= 0 {
		return &ValidationError{Field: "TrialCalls", Message: "must be > 0"}
	}

	if tc.WindowCalls <= 0 {
		return &ValidationError{Field: "WindowCalls", Message: "must be > 0"}
	}

	if tc.WindowDuration <= 0 {
		return &ValidationError{Field: "WindowDuration", Message: "must be > 0"}
	}

	return nil
}

// GetTargetConfig 获取目标配置（优先使用目标级，否则使用默认）
func (c *Config) GetTargetConfig(target string) TargetConfig {
	if cfg, ok := c.Targets[target]; ok {
		return cfg
	}
	return c.Default
}

// ValidationError 配置验证错误
type ValidationError struct {
	Target  string
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Target != "" {
		if e.Err != nil {
			return "breaker config validation failed for target '" + e.Target + "': " + e.Err.Error()
		}
		return "breaker config validation failed for target '" + e.Target + "." + e.Field + "': " + e.Message
	}

	if e.Field != "" {
		return "breaker config validation failed for field '" + e.Field + "': " + e.Message
	}

	if e.Err != nil {
		return "breaker config validation failed: " + e.Err.Error()
	}

	return "breaker config validation failed"
}
