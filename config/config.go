// Package config loads canvasd configuration from TOML files and
// CANVASD_* environment variables using Viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tessellate/canvasd/errors"
)

// Config is the root canvasd configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Hub    HubConfig    `mapstructure:"hub"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// DevMode allows ?userId= admission without a token. Never enable in production.
	DevMode bool `mapstructure:"dev_mode"`
}

// DBConfig controls the SQLite database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig controls bearer-token verification.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// HubConfig carries every timing constant driving the realtime hub.
// The values are the behavioural contract: cursors target ~40 Hz,
// shape updates ~30 Hz, batch flush ~60 Hz.
type HubConfig struct {
	HeartbeatInterval       time.Duration `mapstructure:"heartbeat_interval"`
	PresenceTTL             time.Duration `mapstructure:"presence_ttl"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	CursorThrottle          time.Duration `mapstructure:"cursor_throttle"`
	ShapeThrottle           time.Duration `mapstructure:"shape_throttle"`
	BatchInterval           time.Duration `mapstructure:"batch_interval"`
	LockSweepInterval       time.Duration `mapstructure:"lock_sweep_interval"`
	PresenceCleanupInterval time.Duration `mapstructure:"presence_cleanup_interval"`
	MaxBatchUpdate          int           `mapstructure:"max_batch_update"`
	SendBufferSize          int           `mapstructure:"send_buffer_size"`
}

// CacheConfig controls the TTL caches over the canvas store.
type CacheConfig struct {
	CanvasTTL time.Duration `mapstructure:"canvas_ttl"`
	ShapesTTL time.Duration `mapstructure:"shapes_ttl"`
}

// LogConfig controls logger initialization.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

var globalConfig *Config

// Load reads the canvasd configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := viper.New()
	v.SetEnvPrefix("CANVASD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigName("canvasd")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/canvasd")
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env vars are a full config
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
}
