// Package trace 提供跨调用链的关联上下文（trace id + span 链）。
//
// 一条 trace 对应一次外部请求的完整因果链，每一跳产生一个新的 span。
// trace id 在整条链路上保持不变，span id 每跳重新生成，parent span id
// 指向直接调用方的 span。若进程启用了 OpenTelemetry，trace id 会桥接
// 到 OTel 的 span context，保证日志与链路追踪使用同一个标识。
package trace

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// HTTP Header 约定（入站延续、出站每跳重新铸造 span）
const (
	HeaderTraceID      = "X-Trace-ID"
	HeaderSpanID       = "X-Span-ID"
	HeaderParentSpanID = "X-Parent-Span-ID"
)

// TraceContext 单跳的关联上下文，创建后不可变。
// 根 span 的 ParentSpanID 为空。
type TraceContext struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// IsValid 判断上下文是否可用于传播
func (tc TraceContext) IsValid() bool {
	return tc.TraceID != "" && tc.SpanID != ""
}

// IsRoot 判断是否为链路起点
func (tc TraceContext) IsRoot() bool {
	return tc.ParentSpanID == ""
}

// StartTrace 创建根上下文：铸造 trace id 与首个 span id
func StartTrace() TraceContext {
	return TraceContext{
		TraceID: uuid.New().String(),
		SpanID:  newSpanID(),
	}
}

// ChildSpan 在同一条 trace 上铸造下一跳：
// trace id 不变，span id 重新生成，parent 指向当前 span
func ChildSpan(parent TraceContext) TraceContext {
	return TraceContext{
		TraceID:      parent.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// FromSpanContext 桥接 OTel span context，复用其 trace/span 标识
func FromSpanContext(sc oteltrace.SpanContext) (TraceContext, bool) {
	if !sc.IsValid() {
		return TraceContext{}, false
	}
	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}, true
}

// newSpanID 生成 64 位随机 span id（16 个十六进制字符）。
// crypto/rand 保证同一条 trace 内碰撞概率可忽略。
func newSpanID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand 失败时退化为 uuid 的前 16 位
		return uuid.New().String()[:16]
	}
	return hex.EncodeToString(b[:])
}
