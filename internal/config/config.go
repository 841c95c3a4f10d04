package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"spoon/internal/clock"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "SPOON_CONFIG_PATH"

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address     string `yaml:"address"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		KeyPrefix   string `yaml:"key_prefix"`
		RunTTLHours int    `yaml:"run_ttl_hours"`
	} `yaml:"redis"`

	HTTP struct {
		Port               int     `yaml:"port"`
		APIKey             string  `yaml:"api_key"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		CleanupCron           string `yaml:"cleanup_cron"`
		ConflictHorizonDays   int    `yaml:"conflict_horizon_days"`
		DisplayTimezone       string `yaml:"display_timezone"`
		RestaurantsPath       string `yaml:"restaurants_path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"scheduling"`

	Telemetry struct {
		Enabled     bool   `yaml:"enabled"`
		Endpoint    string `yaml:"endpoint"`
		Insecure    bool   `yaml:"insecure"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"telemetry"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// Load reads the YAML config at path. An empty path falls back to
// $SPOON_CONFIG_PATH and then configs/config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/menuengine.db"
	}
	if cfg.Backup.StoragePath == "" {
		cfg.Backup.StoragePath = filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	}
	if cfg.Scheduling.RestaurantsPath == "" {
		cfg.Scheduling.RestaurantsPath = filepath.Join(filepath.Dir(path), "restaurants.yaml")
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.HTTP.Port > 0 && c.HTTP.APIKey == "" {
		return fmt.Errorf("http.api_key is required when http.port is set")
	}
	if c.Scheduling.ConflictHorizonDays < 0 {
		return fmt.Errorf("scheduling.conflict_horizon_days cannot be negative")
	}
	if c.HTTP.RateLimitPerSecond < 0 {
		return fmt.Errorf("http.rate_limit_per_second cannot be negative")
	}
	return nil
}

func (c *Config) CleanupCron() string {
	if c.Scheduling.CleanupCron == "" {
		return "0 3 * * *"
	}
	return c.Scheduling.CleanupCron
}

func (c *Config) BackupSchedule() string {
	if c.Backup.Schedule == "" {
		return "0 2 * * *"
	}
	return c.Backup.Schedule
}

func (c *Config) ConflictHorizonDays() int {
	if c.Scheduling.ConflictHorizonDays <= 0 {
		return 90
	}
	return c.Scheduling.ConflictHorizonDays
}

func (c *Config) DisplayTimezone() string {
	if c.Scheduling.DisplayTimezone == "" {
		return clock.DefaultDisplayZone
	}
	return c.Scheduling.DisplayTimezone
}

func (c *Config) ReloadInterval() time.Duration {
	if c.Scheduling.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Scheduling.ReloadIntervalSeconds) * time.Second
}

func (c *Config) RunTTL() time.Duration {
	if c.Redis.RunTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Redis.RunTTLHours) * time.Hour
}

func (c *Config) RedisKeyPrefix() string {
	if c.Redis.KeyPrefix == "" {
		return "spoon"
	}
	return c.Redis.KeyPrefix
}

// RateLimit returns requests per second and burst for the API limiter.
func (c *Config) RateLimit() (float64, int) {
	rps, burst := c.HTTP.RateLimitPerSecond, c.HTTP.RateLimitBurst
	if rps == 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return rps, burst
}

func (c *Config) TelemetryServiceName() string {
	if c.Telemetry.ServiceName == "" {
		return "spoon-menuengine"
	}
	return c.Telemetry.ServiceName
}
