// Package telemetry 管理 OpenTelemetry 链路追踪的生命周期：
// TracerProvider 的创建（resource / sampler / exporter / 批处理）与优雅关闭。
// 启用后，trace 包与日志层会自动桥接 OTel 的 trace id。
package telemetry

import (
	"context"

	"github.com/KOMKZ/go-fabric/logger"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Manager 链路追踪管理器
type Manager struct {
	config         Config
	logger         *logger.CtxZapLogger
	tracerProvider *sdktrace.TracerProvider
	shutdownFn     func(context.Context) error
}

// NewManager 创建链路追踪管理器
func NewManager(config Config, log *logger.CtxZapLogger) *Manager {
	if log == nil {
		log = logger.GetLogger("telemetry")
	}
	return &Manager{
		config: config,
		logger: log,
	}
}

// Start 启动链路追踪并注册全局 TracerProvider
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.InfoCtx(ctx, "Telemetry disabled, skipping initialization")
		return nil
	}

	tp, shutdownFn, err := m.createTracerProvider(ctx)
	if err != nil {
		return err
	}

	m.tracerProvider = tp
	m.shutdownFn = shutdownFn

	otel.SetTracerProvider(tp)

	m.logger.InfoCtx(ctx, "✅ Telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.String("exporter", m.config.Exporter.Type),
	)

	return nil
}

// Shutdown 关闭链路追踪，刷出未导出的 Span
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.shutdownFn != nil {
		return m.shutdownFn(ctx)
	}
	return nil
}

// GetTracer 获取 tracer
func (m *Manager) GetTracer(name string) oteltrace.Tracer {
	if m.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// IsEnabled 是否启用
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// GetConfig 获取配置
func (m *Manager) GetConfig() Config {
	return m.config
}
