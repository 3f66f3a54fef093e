package telemetry

import (
	"fmt"
	"time"
)

// Config OpenTelemetry 链路追踪配置
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`             // 是否启用
	ServiceName    string                 `mapstructure:"service_name"`        // 服务名
	ServiceVersion string                 `mapstructure:"service_version"`     // 服务版本
	Exporter       ExporterConfig         `mapstructure:"exporter"`            // 导出器配置
	Sampler        SamplerConfig          `mapstructure:"sampler"`             // 采样配置
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // 资源属性（支持嵌套）
	Span           SpanConfig             `mapstructure:"span"`                // Span 限制
	Batch          BatchConfig            `mapstructure:"batch"`               // 批处理配置
}

// ExporterConfig 导出器配置
type ExporterConfig struct {
	Type     string            `mapstructure:"type"`     // 导出类型：otlp / stdout / noop
	Endpoint string            `mapstructure:"endpoint"` // OTLP gRPC 端点
	Insecure bool              `mapstructure:"insecure"` // 是否使用非加密连接
	Timeout  time.Duration     `mapstructure:"timeout"`  // 导出超时
	Headers  map[string]string `mapstructure:"headers"`  // 自定义 Header（认证等）
}

// SamplerConfig 采样配置
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`  // 采样类型
	Ratio float64 `mapstructure:"ratio"` // 采样比例（仅 trace_id_ratio 生效）
}

// SpanConfig Span 限制配置
type SpanConfig struct {
	MaxAttributes      int `mapstructure:"max_attributes"`
	MaxEvents          int `mapstructure:"max_events"`
	MaxLinks           int `mapstructure:"max_links"`
	MaxAttributeLength int `mapstructure:"max_attribute_length"`
}

// BatchConfig 批处理配置
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "fabric",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type:     "otlp",
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Sampler: SamplerConfig{
			Type:  "parent_based_always_on",
			Ratio: 1.0,
		},
		ResourceAttrs: make(map[string]interface{}),
		Span: SpanConfig{
			MaxAttributes:      128,
			MaxEvents:          128,
			MaxLinks:           128,
			MaxAttributeLength: 1024,
		},
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}

	switch c.Exporter.Type {
	case "otlp", "stdout", "noop":
	default:
		return fmt.Errorf("unsupported exporter type: %s (supported: otlp, stdout, noop)", c.Exporter.Type)
	}

	if c.Exporter.Type == "otlp" && c.Exporter.Endpoint == "" {
		return fmt.Errorf("exporter endpoint is required for otlp exporter")
	}

	switch c.Sampler.Type {
	case "always_on", "always_off", "trace_id_ratio", "parent_based_always_on":
	default:
		return fmt.Errorf("unsupported sampler type: %s", c.Sampler.Type)
	}

	if c.Sampler.Type == "trace_id_ratio" {
		if c.Sampler.Ratio < 0 || c.Sampler.Ratio > 1 {
			return fmt.Errorf("sampler ratio must be between 0 and 1, got: %f", c.Sampler.Ratio)
		}
	}

	if c.Batch.Enabled {
		if c.Batch.MaxQueueSize <= 0 {
			return fmt.Errorf("batch max_queue_size must be positive, got: %d", c.Batch.MaxQueueSize)
		}
		if c.Batch.MaxExportBatchSize <= 0 {
			return fmt.Errorf("batch max_export_batch_size must be positive, got: %d", c.Batch.MaxExportBatchSize)
		}
	}

	return nil
}
