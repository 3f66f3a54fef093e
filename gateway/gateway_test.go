package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/breaker"
	"github.com/KOMKZ/go-fabric/errcode"
	"github.com/KOMKZ/go-fabric/registry"
	"github.com/KOMKZ/go-fabric/router"
	"github.com/KOMKZ/go-fabric/testutil"
	"github.com/KOMKZ/go-fabric/trace"
)

type testFixture struct {
	gateway  *Gateway
	store    *registry.MemoryStore
	breakers *breaker.Manager
}

func newTestGateway(t *testing.T, routes []RouteConfig) *testFixture {
	t.Helper()

	store := registry.NewMemoryStore()
	resolver := router.NewRouter(store)

	bcfg := breaker.DefaultConfig()
	bcfg.Default.MinRequests = 3
	bcfg.Default.WindowCalls = 5
	breakers, err := breaker.NewManager(bcfg)
	require.NoError(t, err)
	t.Cleanup(breakers.Close)

	cfg := DefaultConfig()
	cfg.Mode = "test"
	cfg.Routes = routes
	cfg.UpstreamTimeout = 2 * time.Second
	gw, err := NewGateway(cfg, resolver, breakers)
	require.NoError(t, err)

	return &testFixture{gateway: gw, store: store, breakers: breakers}
}

// registerUpstream 将 httptest 上游注册为目标服务的实例
func (f *testFixture) registerUpstream(t *testing.T, serviceName, instanceID string, upstream *httptest.Server) {
	t.Helper()
	host, port, err := registry.ParseInstanceAddress(strings.TrimPrefix(upstream.URL, "http://"))
	require.NoError(t, err)
	require.NoError(t, f.store.Register(context.Background(), &registry.Instance{
		ServiceName: serviceName,
		InstanceID:  instanceID,
		Address:     host,
		Port:        port,
	}))
}

func TestGatewayPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "order")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"order":"` + r.URL.Path + `"}`))
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	resp := testutil.GET("/orders/42").Do(f.gateway.Engine())

	assert.Equal(t, http.StatusAccepted, resp.Status())
	assert.Contains(t, resp.Body(), "/orders/42")
	assert.Equal(t, "order", resp.Header("X-Backend"))
	assert.Equal(t, "order-1", resp.Header("X-Upstream-Instance"))
}

func TestGatewayStripPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/api/orders", Service: "order-service", StripPrefix: true},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	resp := testutil.GET("/api/orders/42").Do(f.gateway.Engine())
	assert.Equal(t, http.StatusOK, resp.Status())
	assert.Equal(t, "/42", gotPath)
}

func TestGatewayRouteNotFound(t *testing.T) {
	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})

	resp := testutil.GET("/unknown").Do(f.gateway.Engine())
	assert.Equal(t, http.StatusNotFound, resp.Status())

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, errcode.ErrRouteNotFound.Code(), body.Code)
}

func TestGatewayNoHealthyInstance(t *testing.T) {
	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})

	resp := testutil.GET("/orders/1").Do(f.gateway.Engine())
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status())

	var body struct {
		Code    int    `json:"code"`
		Service string `json:"service"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, errcode.ErrUpstreamUnavailable.Code(), body.Code)
	assert.Equal(t, "order-service", body.Service)
}

func TestGatewayUpstream5xxFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	resp := testutil.GET("/orders/1").Do(f.gateway.Engine())
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status())
}

func TestGatewayBreakerOpensOnRepeatedFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	for i := 0; i < 5; i++ {
		testutil.GET("/orders/1").Do(f.gateway.Engine())
	}

	assert.Equal(t, breaker.StateOpen, f.breakers.GetState("gateway", "order-service"))

	// 熔断打开后不再触达上游，仍返回结构化降级
	resp := testutil.GET("/orders/1").Do(f.gateway.Engine())
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status())
}

func TestGatewayTracePropagation(t *testing.T) {
	var gotTraceID, gotParentSpanID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = r.Header.Get(trace.HeaderTraceID)
		gotParentSpanID = r.Header.Get(trace.HeaderParentSpanID)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	resp := testutil.GET("/orders/1").
		WithTraceContext("trace-gw", "span-caller").
		Do(f.gateway.Engine())

	assert.Equal(t, http.StatusOK, resp.Status())
	// 上游延续同一条 trace，父 span 是网关自己铸造的 span
	assert.Equal(t, "trace-gw", gotTraceID)
	assert.NotEmpty(t, gotParentSpanID)
	assert.NotEqual(t, "span-caller", gotParentSpanID)
	assert.Equal(t, gotParentSpanID, resp.Header("X-Span-ID"))
}

func TestGatewayPostBodyForwarded(t *testing.T) {
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	f := newTestGateway(t, []RouteConfig{
		{PathPrefix: "/orders", Service: "order-service"},
	})
	f.registerUpstream(t, "order-service", "order-1", upstream)

	resp := testutil.POST("/orders").
		WithJSON(map[string]string{"sku": "A-1"}).
		Do(f.gateway.Engine())

	assert.Equal(t, http.StatusCreated, resp.Status())
	assert.Contains(t, gotBody, "A-1")
}
