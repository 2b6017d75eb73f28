// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Rendered RenderedConfig `mapstructure:"rendered"`
	AI       AIConfig       `mapstructure:"ai"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// EngineConfig governs batch processing behavior.
type EngineConfig struct {
	ConcurrentRequests int     `mapstructure:"concurrent_requests"`
	RetryAttempts      int     `mapstructure:"retry_attempts"`
	RetryDelaySeconds  float64 `mapstructure:"retry_delay_seconds"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	RateBurst          int     `mapstructure:"rate_burst"`
	PreferAI           bool    `mapstructure:"prefer_ai"`
}

// CacheConfig sizes the two cache tiers.
type CacheConfig struct {
	Dir            string `mapstructure:"dir"`
	TTLHours       int    `mapstructure:"ttl_hours"`
	MemoryCapacity int    `mapstructure:"memory_capacity"`
	MemoryTTLSec   int    `mapstructure:"memory_ttl_seconds"`
}

// HTTPConfig configures the plain-fetch transport.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PoolSize       int    `mapstructure:"pool_size"`
}

// RenderedConfig configures the headless rendering strategy.
type RenderedConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	MaxParallel   int      `mapstructure:"max_parallel"`
	NavTimeoutSec int      `mapstructure:"nav_timeout_seconds"`
	Hosts         []string `mapstructure:"hosts"`
}

// AIConfig configures the document analysis strategy.
type AIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.concurrent_requests", 5)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.retry_delay_seconds", 1.0)
	v.SetDefault("engine.requests_per_second", 2.0)
	v.SetDefault("engine.rate_burst", 1)
	v.SetDefault("engine.prefer_ai", false)
	v.SetDefault("cache.dir", "harvest_cache")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.memory_capacity", 1000)
	v.SetDefault("cache.memory_ttl_seconds", 300)
	v.SetDefault("http.user_agent", "datasheet-harvester/1.0")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.pool_size", 25)
	v.SetDefault("rendered.enabled", true)
	v.SetDefault("rendered.max_parallel", 2)
	v.SetDefault("rendered.nav_timeout_seconds", 45)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.ConcurrentRequests <= 0 {
		return fmt.Errorf("engine.concurrent_requests must be > 0")
	}
	if c.Engine.RetryAttempts <= 0 {
		return fmt.Errorf("engine.retry_attempts must be > 0")
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Rendered.Enabled && c.Rendered.MaxParallel <= 0 {
		return fmt.Errorf("rendered.max_parallel must be > 0 when rendering is enabled")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key must be set when ai is enabled")
	}
	if c.Engine.PreferAI && !c.AI.Enabled {
		return fmt.Errorf("engine.prefer_ai requires ai.enabled")
	}
	return nil
}

// RetryDelay converts the configured delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Engine.RetryDelaySeconds * float64(time.Second))
}

// HTTPTimeout converts the configured fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CacheTTL converts the persistent-tier TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// MemoryTTL converts the memory-tier TTL into a duration.
func (c Config) MemoryTTL() time.Duration {
	return time.Duration(c.Cache.MemoryTTLSec) * time.Second
}

// NavTimeout converts the rendering timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Rendered.NavTimeoutSec) * time.Second
}
