package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	// Run from a directory with no canvasd.toml so only defaults apply.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.DevMode)
	assert.Equal(t, "canvasd.db", cfg.DB.Path)

	assert.Equal(t, DefaultHeartbeatInterval, cfg.Hub.HeartbeatInterval)
	assert.Equal(t, DefaultPresenceTTL, cfg.Hub.PresenceTTL)
	assert.Equal(t, DefaultLockTTL, cfg.Hub.LockTTL)
	assert.Equal(t, DefaultCursorThrottle, cfg.Hub.CursorThrottle)
	assert.Equal(t, DefaultShapeThrottle, cfg.Hub.ShapeThrottle)
	assert.Equal(t, DefaultBatchInterval, cfg.Hub.BatchInterval)
	assert.Equal(t, DefaultMaxBatchUpdate, cfg.Hub.MaxBatchUpdate)
	assert.Equal(t, DefaultSendBufferSize, cfg.Hub.SendBufferSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canvasd.toml")
	content := `
[server]
addr = ":9090"
dev_mode = true

[hub]
lock_ttl = "10s"
max_batch_update = 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Server.DevMode)
	assert.Equal(t, 10*time.Second, cfg.Hub.LockTTL)
	assert.Equal(t, 50, cfg.Hub.MaxBatchUpdate)

	// Unset keys fall back to defaults.
	assert.Equal(t, DefaultCursorThrottle, cfg.Hub.CursorThrottle)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
