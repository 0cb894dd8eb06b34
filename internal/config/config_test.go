package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.PullInterval)
	assert.Equal(t, 500, cfg.StoreCapacity)
	assert.Equal(t, 1*time.Second, cfg.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.ReconnectCap)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
push_url: ws://backend:8000/ws/alerts
pull_url: http://backend:8000/alerts/summary
pull_interval: 5s
store_capacity: 100
nats_url: nats://localhost:4222
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://backend:8000/ws/alerts", cfg.PushURL)
	assert.Equal(t, 5*time.Second, cfg.PullInterval)
	assert.Equal(t, 100, cfg.StoreCapacity)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	// Untouched fields keep defaults.
	assert.Equal(t, "console.incidents", cfg.NATSSubject)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONSOLE_PUSH_URL", "ws://override:9000/ws/alerts")
	t.Setenv("CONSOLE_API_ADDR", "127.0.0.1:9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://override:9000/ws/alerts", cfg.PushURL)
	assert.Equal(t, "127.0.0.1:9999", cfg.APIAddr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("push_url: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RepairsBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_capacity: -1
pull_interval: 0s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.StoreCapacity)
	assert.Equal(t, 10*time.Second, cfg.PullInterval)
}
