package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "未启用时跳过校验",
			modify:  func(c *Config) { c.Enabled = false; c.ServiceName = "" },
			wantErr: false,
		},
		{
			name:    "默认配置启用后合法",
			modify:  func(c *Config) { c.Enabled = true },
			wantErr: false,
		},
		{
			name:    "缺少服务名",
			modify:  func(c *Config) { c.Enabled = true; c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "不支持的导出器类型",
			modify:  func(c *Config) { c.Enabled = true; c.Exporter.Type = "jaeger" },
			wantErr: true,
		},
		{
			name: "otlp 缺少端点",
			modify: func(c *Config) {
				c.Enabled = true
				c.Exporter.Endpoint = ""
			},
			wantErr: true,
		},
		{
			name: "采样比例越界",
			modify: func(c *Config) {
				c.Enabled = true
				c.Sampler.Type = "trace_id_ratio"
				c.Sampler.Ratio = 1.5
			},
			wantErr: true,
		},
		{
			name: "批处理队列非法",
			modify: func(c *Config) {
				c.Enabled = true
				c.Batch.MaxQueueSize = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManager_Lifecycle(t *testing.T) {
	t.Run("未启用时启动是空操作", func(t *testing.T) {
		m := NewManager(DefaultConfig(), nil)

		require.NoError(t, m.Start(context.Background()))
		assert.False(t, m.IsEnabled())
		assert.NoError(t, m.Shutdown(context.Background()))
	})

	t.Run("noop 导出器完整生命周期", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.ServiceName = "fabric-test"
		cfg.Exporter.Type = "noop"
		cfg.Batch.Enabled = false

		m := NewManager(cfg, nil)
		require.NoError(t, m.Start(context.Background()))

		tracer := m.GetTracer("test")
		_, span := tracer.Start(context.Background(), "op")
		span.End()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		samplerType string
		want        string
	}{
		{"always_on", "AlwaysOnSampler"},
		{"always_off", "AlwaysOffSampler"},
		{"trace_id_ratio", "TraceIDRatioBased"},
		{"parent_based_always_on", "ParentBased"},
		{"unknown", "ParentBased"},
	}

	for _, tt := range tests {
		t.Run(tt.samplerType, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sampler.Type = tt.samplerType
			cfg.Sampler.Ratio = 0.5
			m := NewManager(cfg, nil)

			assert.Contains(t, m.createSampler().Description(), tt.want)
		})
	}
}

func TestFlattenAttrs(t *testing.T) {
	attrs := map[string]interface{}{
		"env": "prod",
		"deployment": map[string]interface{}{
			"region": "us-east-1",
			"zone":   map[string]interface{}{"id": "a"},
		},
		"replicas": 3,
	}

	flat := flattenAttrs(attrs, "")

	assert.Equal(t, "prod", flat["env"])
	assert.Equal(t, "us-east-1", flat["deployment.region"])
	assert.Equal(t, "a", flat["deployment.zone.id"])
	assert.Equal(t, "3", flat["replicas"])
}
