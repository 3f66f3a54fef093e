package trace

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	t.Run("注入后可以取回", func(t *testing.T) {
		tc := StartTrace()
		ctx := ContextWith(context.Background(), tc)

		got, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, tc, got)
	})

	t.Run("日志层按字符串 key 可见 trace id", func(t *testing.T) {
		tc := StartTrace()
		ctx := ContextWith(context.Background(), tc)

		val := ctx.Value("trace_id")
		require.NotNil(t, val)
		assert.Equal(t, tc.TraceID, val)
	})

	t.Run("空 context 取不到", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		assert.False(t, ok)
	})
}

func TestHTTPInjectExtract(t *testing.T) {
	t.Run("Header 往返", func(t *testing.T) {
		tc := ChildSpan(StartTrace())
		header := http.Header{}
		Inject(tc, header)

		got, ok := Extract(header)
		require.True(t, ok)
		assert.Equal(t, tc, got)
	})

	t.Run("根上下文不写 parent header", func(t *testing.T) {
		tc := StartTrace()
		header := http.Header{}
		Inject(tc, header)

		assert.Empty(t, header.Get(HeaderParentSpanID))
	})

	t.Run("无效上下文不注入", func(t *testing.T) {
		header := http.Header{}
		Inject(TraceContext{}, header)
		assert.Empty(t, header.Get(HeaderTraceID))

		_, ok := Extract(header)
		assert.False(t, ok)
	})
}

func TestEnsureInbound(t *testing.T) {
	t.Run("无入站上下文时开启根 trace", func(t *testing.T) {
		ctx, tc := EnsureInbound(context.Background(), http.Header{})

		assert.True(t, tc.IsRoot())
		got, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, tc, got)
	})

	t.Run("延续入站上下文", func(t *testing.T) {
		upstream := StartTrace()
		header := http.Header{}
		Inject(upstream, header)

		_, tc := EnsureInbound(context.Background(), header)

		assert.Equal(t, upstream.TraceID, tc.TraceID)
		assert.Equal(t, upstream.SpanID, tc.ParentSpanID)
		assert.NotEqual(t, upstream.SpanID, tc.SpanID)
	})
}

// 模拟网关 → 服务A → 服务B 三跳传播：
// 每一跳从入站 Header 延续上下文、再向下游注入出站 Header
func TestThreeHopPropagation(t *testing.T) {
	// 第一跳：网关入口，没有入站上下文
	ctx1, hop1 := EnsureInbound(context.Background(), http.Header{})
	require.True(t, hop1.IsRoot())

	// 网关 → 服务A
	outHeader1 := http.Header{}
	sent1 := Outbound(ctx1, outHeader1)

	// 第二跳：服务A 延续
	ctx2, hop2 := EnsureInbound(context.Background(), outHeader1)
	require.Equal(t, hop1.TraceID, hop2.TraceID)
	assert.Equal(t, sent1.SpanID, hop2.ParentSpanID)

	// 服务A → 服务B
	outHeader2 := http.Header{}
	sent2 := Outbound(ctx2, outHeader2)

	// 第三跳：服务B 延续
	_, hop3 := EnsureInbound(context.Background(), outHeader2)

	// 三跳共享同一个 trace id
	assert.Equal(t, hop1.TraceID, hop3.TraceID)
	assert.Equal(t, sent2.SpanID, hop3.ParentSpanID)

	// 全链路 span id 不重复
	ids := []string{hop1.SpanID, sent1.SpanID, hop2.SpanID, sent2.SpanID, hop3.SpanID}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
