package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry 模拟注册中心：可配置心跳从某一时刻起返回 404
type fakeRegistry struct {
	mu          sync.Mutex
	registered  int
	heartbeats  int
	deregisters int
	reject404   bool
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /registry/instances", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.registered++
		f.reject404 = false
		f.mu.Unlock()

		var req struct {
			InstanceID string `json:"instance_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		id := req.InstanceID
		if id == "" {
			id = "generated-1"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]string{"instance_id": id},
		})
	})
	mux.HandleFunc("POST /registry/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.heartbeats++
		reject := f.reject404
		f.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /registry/instances/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deregisters++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeRegistry) counts() (registered, heartbeats, deregisters int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, f.heartbeats, f.deregisters
}

func (f *fakeRegistry) startRejecting() {
	f.mu.Lock()
	f.reject404 = true
	f.mu.Unlock()
}

func newTestAgent(t *testing.T, registryURL string) *Agent {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RegistryURL = registryURL
	cfg.ServiceName = "order-service"
	cfg.InstanceID = "order-1"
	cfg.Address = "10.0.0.1"
	cfg.Port = 9001
	cfg.RenewInterval = 20 * time.Millisecond
	cfg.RegisterBackoff = 10 * time.Millisecond
	cfg.RegisterBackoffMax = 50 * time.Millisecond

	a, err := NewAgent(cfg)
	require.NoError(t, err)
	return a
}

func TestAgentRegistersAndRenews(t *testing.T) {
	fake := &fakeRegistry{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	assert.Equal(t, "order-1", a.InstanceID())

	assert.Eventually(t, func() bool {
		_, hb, _ := fake.counts()
		return hb >= 2
	}, time.Second, 10*time.Millisecond)

	reg, _, _ := fake.counts()
	assert.Equal(t, 1, reg)
}

func TestAgentReregistersOn404(t *testing.T) {
	fake := &fakeRegistry{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	fake.startRejecting()

	// 续约 404 后应重新注册并恢复心跳
	assert.Eventually(t, func() bool {
		reg, _, _ := fake.counts()
		return reg >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentStopDeregisters(t *testing.T) {
	fake := &fakeRegistry{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	_, _, dereg := fake.counts()
	assert.Equal(t, 1, dereg)

	// 重复 Stop 幂等
	require.NoError(t, a.Stop(context.Background()))
}

func TestAgentSurvivesUnreachableRegistryAtStartup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegistryURL = "http://127.0.0.1:1" // 不可达
	cfg.ServiceName = "order-service"
	cfg.Address = "10.0.0.1"
	cfg.Port = 9001
	cfg.RegisterBackoff = 10 * time.Millisecond

	a, err := NewAgent(cfg)
	require.NoError(t, err)

	// 注册中心不可达时 Start 一直退避，ctx 取消后返回
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = a.Start(ctx)
	assert.Error(t, err)
}

func TestAgentConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = "x"
	assert.Error(t, cfg.Validate()) // 缺 address/port

	cfg.Address = "10.0.0.1"
	cfg.Port = 80
	assert.NoError(t, cfg.Validate())
}
