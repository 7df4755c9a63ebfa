package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.WebSocket.Address)
	assert.Equal(t, int64(1<<20), cfg.Server.WebSocket.ReadLimit)
	assert.Equal(t, 256, cfg.Server.WebSocket.SendBufferSize)
	assert.Equal(t, 5*time.Minute, cfg.Server.LeasePeriod)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  websocket:
    address: ":9000"
    ping_interval: 15s
  lease_period: 2m
database:
  url: "postgres://localhost/xword"
  max_conns: 4
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.WebSocket.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.WebSocket.PingInterval)
	assert.Equal(t, 2*time.Minute, cfg.Server.LeasePeriod)
	assert.Equal(t, "postgres://localhost/xword", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Values the file does not set keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxConnIdleTime)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  websocket:
    send_buffer_size: 0
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
