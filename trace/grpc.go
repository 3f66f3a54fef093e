package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// gRPC Metadata key 约定（metadata key 统一小写）
const (
	MetadataTraceID      = "x-trace-id"
	MetadataSpanID       = "x-span-id"
	MetadataParentSpanID = "x-parent-span-id"
)

// UnaryClientInterceptor 客户端链路拦截器
//
// 功能：
//  1. 从 Context 取当前 TraceContext，铸造下一跳 span
//  2. 注入到 outgoing metadata，供服务端延续链路
//
// 用法：
//
//	grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor())
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{},
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {

		var outbound TraceContext
		if current, ok := FromContext(ctx); ok {
			outbound = ChildSpan(current)
		} else {
			outbound = StartTrace()
		}

		ctx = injectMetadata(ctx, outbound)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor 服务端链路拦截器
//
// 功能：
//  1. 从 incoming metadata 提取上游 TraceContext
//  2. 延续链路（铸造本跳 span）或开启新的根 trace
//  3. 注入 Context，供业务逻辑与日志使用
//
// 用法：
//
//	grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor())
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {

		var tc TraceContext
		if inbound, ok := extractMetadata(ctx); ok {
			tc = ChildSpan(inbound)
		} else {
			tc = StartTrace()
		}

		return handler(ContextWith(ctx, tc), req)
	}
}

// injectMetadata 将 TraceContext 写入 outgoing metadata
func injectMetadata(ctx context.Context, tc TraceContext) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}

	md.Set(MetadataTraceID, tc.TraceID)
	md.Set(MetadataSpanID, tc.SpanID)
	if tc.ParentSpanID != "" {
		md.Set(MetadataParentSpanID, tc.ParentSpanID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

// extractMetadata 从 incoming metadata 读取上游 TraceContext
func extractMetadata(ctx context.Context) (TraceContext, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return TraceContext{}, false
	}

	get := func(key string) string {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
		return ""
	}

	tc := TraceContext{
		TraceID:      get(MetadataTraceID),
		SpanID:       get(MetadataSpanID),
		ParentSpanID: get(MetadataParentSpanID),
	}
	return tc, tc.IsValid()
}
