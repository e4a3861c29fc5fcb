package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
)

const envPrefix = "CITYWEATHER"

// Config is the top-level configuration for city-weather.
type Config struct {
	// Provider selects the upstream: "openweather" or "openmeteo".
	Provider string `mapstructure:"provider"`
	// APIKey is passed to the upstream as-is.
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Lang    string `mapstructure:"lang"`

	ListenAddr string `mapstructure:"listen_addr"`
	LogFormat  string `mapstructure:"log_format"`
	LogLevel   string `mapstructure:"log_level"`

	HTTP  HTTPConfig  `mapstructure:"http"`
	Cache CacheConfig `mapstructure:"cache"`
}

// HTTPConfig controls the outbound client.
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`

	// CircuitBreaker shares a breaker across calls; serve enables it.
	CircuitBreaker bool `mapstructure:"circuit_breaker"`
}

// CacheConfig selects the cache backend and its freshness windows.
type CacheConfig struct {
	Driver     string `mapstructure:"driver"` // "file", "sqlite" or "memory"
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`

	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	GeocodeTTL  time.Duration `mapstructure:"geocode_ttl"`
	CurrentTTL  time.Duration `mapstructure:"current_ttl"`
	ForecastTTL time.Duration `mapstructure:"forecast_ttl"`

	// MaxAge and PruneInterval drive the janitor in serve mode.
	MaxAge        time.Duration `mapstructure:"max_age"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "city-weather")
	}
	return filepath.Join(os.TempDir(), "city-weather")
}

// Load reads configuration with sensible defaults. A .env file in the working
// directory is loaded into the environment first.
// Precedence: flag → $CITYWEATHER_CONFIG → ~/.config/city-weather/config.yaml → /etc/city-weather/config.yaml,
// then CITYWEATHER_* env vars on top.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	cacheDir := defaultCacheDir()
	v.SetDefault("provider", "openweather")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("lang", "en")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff", time.Second)
	v.SetDefault("http.circuit_breaker", false)
	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.sqlite_path", filepath.Join(cacheDir, "cache.db"))
	v.SetDefault("cache.default_ttl", 10*time.Minute)
	v.SetDefault("cache.geocode_ttl", 24*time.Hour)
	v.SetDefault("cache.current_ttl", 10*time.Minute)
	v.SetDefault("cache.forecast_ttl", 30*time.Minute)
	v.SetDefault("cache.max_age", 7*24*time.Hour)
	v.SetDefault("cache.prune_interval", time.Hour)

	// CITYWEATHER_CACHE_DRIVER overrides cache.driver.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", envPrefix+"_API_KEY", "OPENWEATHER_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "city-weather"))
		}
		v.AddConfigPath("/etc/city-weather")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
		// The file may hold the API key.
		if info, err := os.Stat(cfgPath); err == nil && info.Mode().Perm()&0004 != 0 {
			slog.Warn("config file is world-readable", "path", cfgPath,
				"permissions", fmt.Sprintf("%04o", info.Mode().Perm()))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete and correct.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openweather", "openmeteo":
	default:
		return fmt.Errorf("provider must be 'openweather' or 'openmeteo', got %q", c.Provider)
	}

	switch c.Cache.Driver {
	case "file":
		if c.Cache.Dir == "" {
			return errors.New("cache.dir is required for file driver")
		}
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			return errors.New("cache.sqlite_path is required for sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.driver must be 'file', 'sqlite' or 'memory', got %q", c.Cache.Driver)
	}

	for name, d := range map[string]time.Duration{
		"cache.default_ttl":    c.Cache.DefaultTTL,
		"cache.max_age":        c.Cache.MaxAge,
		"cache.prune_interval": c.Cache.PruneInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	// Zero means "use cache.default_ttl".
	for name, ttl := range map[string]time.Duration{
		"cache.geocode_ttl":  c.Cache.GeocodeTTL,
		"cache.current_ttl":  c.Cache.CurrentTTL,
		"cache.forecast_ttl": c.Cache.ForecastTTL,
	} {
		if ttl < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, ttl)
		}
	}

	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be at least 1, got %d", c.HTTP.MaxRetries)
	}
	if c.HTTP.Backoff < 0 {
		return fmt.Errorf("http.backoff must not be negative, got %s", c.HTTP.Backoff)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q is not a valid address: %w", c.ListenAddr, err)
	}
	return nil
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return l, nil
}

// StoreLocation returns the location argument store.Open expects for the
// configured driver.
func (c *Config) StoreLocation() string {
	switch c.Cache.Driver {
	case "file":
		return c.Cache.Dir
	case "sqlite":
		return c.Cache.SQLitePath
	default:
		return ""
	}
}

// TTLs returns the per-endpoint freshness windows. A zero per-endpoint TTL
// falls back to cache.default_ttl.
func (c *Config) TTLs() weather.TTLs {
	pick := func(ttl time.Duration) time.Duration {
		if ttl > 0 {
			return ttl
		}
		return c.Cache.DefaultTTL
	}
	return weather.TTLs{
		Geocode:  pick(c.Cache.GeocodeTTL),
		Current:  pick(c.Cache.CurrentTTL),
		Forecast: pick(c.Cache.ForecastTTL),
	}
}

// RetryPolicy returns the outbound retry settings.
func (c *Config) RetryPolicy() providers.RetryPolicy {
	p := providers.DefaultRetryPolicy()
	p.MaxRetries = c.HTTP.MaxRetries
	p.BaseBackoff = c.HTTP.Backoff
	return p
}
