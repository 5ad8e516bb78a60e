package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default hub timings. LockTTL is the single source of truth for lock
// expiry; the sweep's activity gate reuses the same constant.
const (
	DefaultHeartbeatInterval       = 30 * time.Second
	DefaultPresenceTTL             = 30 * time.Second
	DefaultLockTTL                 = 5 * time.Second
	DefaultCursorThrottle          = 25 * time.Millisecond
	DefaultShapeThrottle           = 33 * time.Millisecond
	DefaultBatchInterval           = 16 * time.Millisecond
	DefaultLockSweepInterval       = 1 * time.Second
	DefaultPresenceCleanupInterval = 60 * time.Second
	DefaultMaxBatchUpdate          = 100
	DefaultSendBufferSize          = 256
)

// SetDefaults applies default values to a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.dev_mode", false)

	v.SetDefault("db.path", "canvasd.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "canvasd")

	v.SetDefault("hub.heartbeat_interval", DefaultHeartbeatInterval)
	v.SetDefault("hub.presence_ttl", DefaultPresenceTTL)
	v.SetDefault("hub.lock_ttl", DefaultLockTTL)
	v.SetDefault("hub.cursor_throttle", DefaultCursorThrottle)
	v.SetDefault("hub.shape_throttle", DefaultShapeThrottle)
	v.SetDefault("hub.batch_interval", DefaultBatchInterval)
	v.SetDefault("hub.lock_sweep_interval", DefaultLockSweepInterval)
	v.SetDefault("hub.presence_cleanup_interval", DefaultPresenceCleanupInterval)
	v.SetDefault("hub.max_batch_update", DefaultMaxBatchUpdate)
	v.SetDefault("hub.send_buffer_size", DefaultSendBufferSize)

	v.SetDefault("cache.canvas_ttl", 30*time.Second)
	v.SetDefault("cache.shapes_ttl", 5*time.Second)

	v.SetDefault("log.json", false)
}
