package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/importsize/importsize/internal/observability"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Bundler   BundlerConfig   `mapstructure:"bundler"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// RegistryConfig contains settings for the remote package registry
type RegistryConfig struct {
	Root            string        `mapstructure:"root"`
	Conditions      []string      `mapstructure:"conditions"`
	JSRManifests    []string      `mapstructure:"jsr_manifests"`
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst       int           `mapstructure:"rate_burst"`
	MaxResponseSize int64         `mapstructure:"max_response_size"`
}

// CacheConfig contains in-memory cache sizes
type CacheConfig struct {
	Modules   int `mapstructure:"modules"`   // fetched module and manifest texts
	Manifests int `mapstructure:"manifests"` // parsed manifests
}

// BundlerConfig contains esbuild settings
type BundlerConfig struct {
	SuppressMarker string `mapstructure:"suppress_marker"`
	Target         string `mapstructure:"target"`
	Platform       string `mapstructure:"platform"` // browser or neutral
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("importsize")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/importsize")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("IMPORTSIZE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// RateLimitConfig limits bundle requests per client IP
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Max      int           `mapstructure:"max"` // requests per window
	Window   time.Duration `mapstructure:"window"`
	Backend  string        `mapstructure:"backend"`   // local or redis
	RedisURL string        `mapstructure:"redis_url"` // redis://[password@]host:port[/db]
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 1024*1024) // 1MB

	// Registry defaults
	viper.SetDefault("registry.root", "https://esm.sh")
	viper.SetDefault("registry.conditions", []string{"browser", "import", "default"})
	viper.SetDefault("registry.jsr_manifests", []string{"jsr.json", "deno.json", "deno.jsonc"})
	viper.SetDefault("registry.user_agent", "importsize/1.0")
	viper.SetDefault("registry.timeout", "30s")
	viper.SetDefault("registry.rate_limit", 0)
	viper.SetDefault("registry.rate_burst", 10)
	viper.SetDefault("registry.max_response_size", 32*1024*1024) // 32MB

	// Cache defaults
	viper.SetDefault("cache.modules", 50)
	viper.SetDefault("cache.manifests", 50)

	// Bundler defaults
	viper.SetDefault("bundler.suppress_marker", "PLUGIN_TIMINGS")
	viper.SetDefault("bundler.target", "esnext")
	viper.SetDefault("bundler.platform", "browser")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "importsize")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	viper.SetDefault("metrics.enabled", true)

	// Rate limit defaults
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.max", 60)
	viper.SetDefault("rate_limit.window", "1m")
	viper.SetDefault("rate_limit.backend", "local")
	viper.SetDefault("rate_limit.redis_url", "")
	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry configuration error: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}
	if err := c.Bundler.Validate(); err != nil {
		return fmt.Errorf("bundler configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit configuration error: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates registry configuration
func (rc *RegistryConfig) Validate() error {
	u, err := url.Parse(rc.Root)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("root must be an absolute http(s) URL, got: %q", rc.Root)
	}
	if len(rc.Conditions) == 0 {
		return fmt.Errorf("conditions cannot be empty")
	}
	if len(rc.JSRManifests) == 0 {
		return fmt.Errorf("jsr_manifests cannot be empty")
	}
	if rc.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got: %v", rc.Timeout)
	}
	if rc.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got: %v", rc.RateLimit)
	}
	if rc.MaxResponseSize <= 0 {
		return fmt.Errorf("max_response_size must be positive, got: %d", rc.MaxResponseSize)
	}
	return nil
}

// Host returns the host of the registry root
func (rc *RegistryConfig) Host() string {
	u, err := url.Parse(rc.Root)
	if err != nil {
		return ""
	}
	return u.Host
}

// Validate validates cache configuration
func (cc *CacheConfig) Validate() error {
	if cc.Modules <= 0 {
		return fmt.Errorf("modules must be positive, got: %d", cc.Modules)
	}
	if cc.Manifests <= 0 {
		return fmt.Errorf("manifests must be positive, got: %d", cc.Manifests)
	}
	return nil
}

var validTargets = []string{"esnext", "es2015", "es2016", "es2017", "es2018", "es2019", "es2020", "es2021", "es2022"}

// Validate validates bundler configuration
func (bc *BundlerConfig) Validate() error {
	target := strings.ToLower(bc.Target)
	targetValid := target == ""
	for _, t := range validTargets {
		if target == t {
			targetValid = true
			break
		}
	}
	if !targetValid {
		return fmt.Errorf("invalid target: %s (must be one of: %v)", bc.Target, validTargets)
	}
	if bc.Platform != "" && bc.Platform != "browser" && bc.Platform != "neutral" {
		return fmt.Errorf("platform must be 'browser' or 'neutral'")
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %v", tc.SampleRate)
	}
	return nil
}

// Validate validates rate limit configuration
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.Max <= 0 {
		return fmt.Errorf("max must be positive, got: %d", rc.Max)
	}
	if rc.Window <= 0 {
		return fmt.Errorf("window must be positive, got: %v", rc.Window)
	}
	switch rc.Backend {
	case "local", "":
	case "redis":
		if rc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend: %s (valid options: local, redis)", rc.Backend)
	}
	return nil
}

// TracerConfig converts the tracing section for the observability package
func (tc *TracingConfig) TracerConfig() observability.TracerConfig {
	return observability.TracerConfig{
		Enabled:     tc.Enabled,
		Endpoint:    tc.Endpoint,
		ServiceName: tc.ServiceName,
		Environment: tc.Environment,
		SampleRate:  tc.SampleRate,
		Insecure:    tc.Insecure,
	}
}
