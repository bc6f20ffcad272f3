package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete service configuration. Values come from defaults,
// then an optional TOML file, then environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Minio    MinioConfig    `toml:"minio"`
	Auth     AuthConfig     `toml:"auth"`
	Jobs     JobsConfig     `toml:"jobs"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type DatabaseConfig struct {
	URL         string `toml:"url"`
	MaxConns    int32  `toml:"max_conns"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

// RedisConfig contains the summary cache settings
type RedisConfig struct {
	Addr       string        `toml:"addr"`
	Password   string        `toml:"password"`
	DB         int           `toml:"db"`
	SummaryTTL time.Duration `toml:"summary_ttl"`
}

// MinioConfig contains the tag archive settings. Archiving is off when
// Endpoint is empty.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// JobsConfig contains background job intervals and thresholds
type JobsConfig struct {
	Enabled           bool          `toml:"enabled"`
	ReconcileInterval time.Duration `toml:"reconcile_interval"`
	OverdueInterval   time.Duration `toml:"overdue_interval"`
	LowStockInterval  time.Duration `toml:"low_stock_interval"`
	LowStockThreshold int           `toml:"low_stock_threshold"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{MaxConns: 10, AutoMigrate: true},
		Redis:    RedisConfig{Addr: "localhost:6379", SummaryTTL: 10 * time.Minute},
		Minio:    MinioConfig{Bucket: "stockroom-archive"},
		Jobs: JobsConfig{
			Enabled:           true,
			ReconcileInterval: 15 * time.Minute,
			OverdueInterval:   time.Hour,
			LowStockInterval:  30 * time.Minute,
			LowStockThreshold: 2,
		},
	}
}

// Load builds the configuration. filename may be empty.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := toml.DecodeFile(filename, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.Bucket, "MINIO_BUCKET")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.Jobs.LowStockThreshold, "LOW_STOCK_THRESHOLD"); err != nil {
		return err
	}
	if err := setBool(&c.Minio.UseSSL, "MINIO_USE_SSL"); err != nil {
		return err
	}
	if err := setBool(&c.Jobs.Enabled, "JOBS_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&c.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE"); err != nil {
		return err
	}
	if err := setDuration(&c.Redis.SummaryTTL, "SUMMARY_CACHE_TTL"); err != nil {
		return err
	}
	return setDuration(&c.Jobs.ReconcileInterval, "RECONCILE_INTERVAL")
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Jobs.Enabled {
		for name, d := range map[string]time.Duration{
			"reconcile_interval": c.Jobs.ReconcileInterval,
			"overdue_interval":   c.Jobs.OverdueInterval,
			"low_stock_interval": c.Jobs.LowStockInterval,
		} {
			if d <= 0 {
				return fmt.Errorf("jobs.%s must be positive", name)
			}
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
