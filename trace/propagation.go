package trace

import (
	"context"
	"net/http"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// contextKey 避免与其他包的 context key 冲突
type contextKey struct{}

// logTraceIDKey 与 logger 包的 trace id 提取约定保持一致
const logTraceIDKey = "trace_id"

// ContextWith 将 TraceContext 注入 context。
// 同时以字符串 key 写入 trace id，供日志层按约定提取。
func ContextWith(ctx context.Context, tc TraceContext) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, tc)
	return context.WithValue(ctx, logTraceIDKey, tc.TraceID) //nolint:staticcheck // 日志层按字符串 key 读取
}

// FromContext 从 context 取出 TraceContext。
// 优先取显式注入的上下文；没有时桥接 OTel span。
func FromContext(ctx context.Context) (TraceContext, bool) {
	if tc, ok := ctx.Value(contextKey{}).(TraceContext); ok && tc.IsValid() {
		return tc, true
	}
	return FromSpanContext(oteltrace.SpanFromContext(ctx).SpanContext())
}

// Inject 将 TraceContext 写入出站 HTTP Header
func Inject(tc TraceContext, header http.Header) {
	if !tc.IsValid() {
		return
	}
	header.Set(HeaderTraceID, tc.TraceID)
	header.Set(HeaderSpanID, tc.SpanID)
	if tc.ParentSpanID != "" {
		header.Set(HeaderParentSpanID, tc.ParentSpanID)
	}
}

// Extract 从入站 HTTP Header 读取 TraceContext
func Extract(header http.Header) (TraceContext, bool) {
	tc := TraceContext{
		TraceID:      header.Get(HeaderTraceID),
		SpanID:       header.Get(HeaderSpanID),
		ParentSpanID: header.Get(HeaderParentSpanID),
	}
	return tc, tc.IsValid()
}

// EnsureInbound 处理入站请求的链路上下文：
// Header 中已有上下文则延续（新铸本跳 span），否则开启新的根 trace。
// 返回注入后的 context 与本跳的 TraceContext。
func EnsureInbound(ctx context.Context, header http.Header) (context.Context, TraceContext) {
	var tc TraceContext
	if inbound, ok := Extract(header); ok {
		tc = ChildSpan(inbound)
	} else {
		tc = StartTrace()
	}
	return ContextWith(ctx, tc), tc
}

// Outbound 为出站调用铸造下一跳上下文并写入 Header。
// context 中没有上下文时以新根开始，保证出站调用总是可关联。
func Outbound(ctx context.Context, header http.Header) TraceContext {
	current, ok := FromContext(ctx)
	var tc TraceContext
	if ok {
		tc = ChildSpan(current)
	} else {
		tc = StartTrace()
	}
	Inject(tc, header)
	return tc
}
