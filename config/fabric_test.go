package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/registry"
)

func writeFabricYAML(t *testing.T, content string) *Loader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewLoader()
	loader.AddSource(NewFileSource(path, 10))
	require.NoError(t, loader.Load())
	return loader
}

func TestLoadFabricConfigDefaults(t *testing.T) {
	loader := writeFabricYAML(t, `
app:
  name: my-fabric
`)
	cfg, err := LoadFabricConfig(loader)
	require.NoError(t, err)

	assert.Equal(t, "my-fabric", cfg.App.Name)
	assert.Equal(t, BackendMemory, cfg.Registry.Backend)
	assert.Equal(t, ":8500", cfg.Server.Listen)
	assert.Equal(t, ":8080", cfg.Gateway.Listen)
	assert.Equal(t, "my-fabric", cfg.Logger.AppName)
	assert.Equal(t, "my-fabric", cfg.Telemetry.ServiceName)
	assert.True(t, cfg.Heartbeat.RenewInterval > 0)
	assert.True(t, cfg.Breaker.Enabled)
}

func TestLoadFabricConfigOverrides(t *testing.T) {
	loader := writeFabricYAML(t, `
server:
  listen: ":9500"
gateway:
  listen: ":9080"
  routes:
    - path_prefix: /orders
      service: order-service
      policy: RANDOM
heartbeat:
  renew_interval: 5s
  suspect_after: 2
  evict_after: 4
`)
	cfg, err := LoadFabricConfig(loader)
	require.NoError(t, err)

	assert.Equal(t, ":9500", cfg.Server.Listen)
	assert.Equal(t, ":9080", cfg.Gateway.Listen)
	require.Len(t, cfg.Gateway.Routes, 1)
	assert.Equal(t, "order-service", cfg.Gateway.Routes[0].Service)
	assert.Equal(t, 2, cfg.Heartbeat.SuspectAfter)
}

func TestLoadFabricConfigRejectsBadBackend(t *testing.T) {
	loader := writeFabricYAML(t, `
registry:
  backend: cassandra
`)
	_, err := LoadFabricConfig(loader)
	assert.Error(t, err)
}

func TestLoadFabricConfigRedisRequiresAddr(t *testing.T) {
	loader := writeFabricYAML(t, `
registry:
  backend: redis
`)
	_, err := LoadFabricConfig(loader)
	assert.Error(t, err)
}

func TestNewStoreMemory(t *testing.T) {
	rc := RegistryConfig{Backend: BackendMemory}
	store, err := rc.NewStore()
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*registry.MemoryStore)
	assert.True(t, ok)
}
