package telemetry

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createTracerProvider 创建 TracerProvider
func (m *Manager) createTracerProvider(ctx context.Context) (
	*sdktrace.TracerProvider, func(context.Context) error, error) {

	res, err := m.createResource(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource failed: %w", err)
	}

	exporter, err := m.createExporter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create exporter failed: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(m.createSampler()),
	}

	if m.config.Batch.Enabled {
		// 批处理模式（生产推荐）
		batchOpts := []sdktrace.BatchSpanProcessorOption{
			sdktrace.WithMaxQueueSize(m.config.Batch.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(m.config.Batch.MaxExportBatchSize),
			sdktrace.WithBatchTimeout(m.config.Batch.ScheduleDelay),
			sdktrace.WithExportTimeout(m.config.Batch.ExportTimeout),
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, batchOpts...))
	} else {
		// 同步模式（仅调试用）
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	if m.config.Span.MaxAttributes > 0 {
		opts = append(opts, sdktrace.WithSpanLimits(sdktrace.SpanLimits{
			AttributeCountLimit:       m.config.Span.MaxAttributes,
			EventCountLimit:           m.config.Span.MaxEvents,
			LinkCountLimit:            m.config.Span.MaxLinks,
			AttributeValueLengthLimit: m.config.Span.MaxAttributeLength,
		}))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	shutdownFn := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider failed: %w", err)
		}
		return nil
	}

	return tp, shutdownFn, nil
}

// createSampler 创建 Sampler
func (m *Manager) createSampler() sdktrace.Sampler {
	switch m.config.Sampler.Type {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "trace_id_ratio":
		return sdktrace.TraceIDRatioBased(m.config.Sampler.Ratio)
	case "parent_based_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}
