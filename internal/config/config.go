// Package config loads neosweat settings from built-in defaults, an optional
// YAML file, and NEOSWEAT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"neosweat/pkg/domain"
)

const (
	// EnvPrefix prefixes every environment override. Nested keys use "__":
	// NEOSWEAT_BLOB__S3__BUCKET sets blob.s3.bucket.
	EnvPrefix = "NEOSWEAT_"
	// ConfigPathEnvVar names the YAML file to load.
	ConfigPathEnvVar = "NEOSWEAT_CONFIG"
	// DefaultConfigPath is read when present and no path is given.
	DefaultConfigPath = "config.yaml"
)

// Config is the complete process configuration.
type Config struct {
	Storage     StorageConfig     `koanf:"storage"`
	Blob        BlobConfig        `koanf:"blob"`
	Export      ExportConfig      `koanf:"export"`
	Calibration CalibrationConfig `koanf:"calibration"`
	Lock        LockConfig        `koanf:"lock"`
	Logging     LoggingConfig     `koanf:"logging"`
	Server      ServerConfig      `koanf:"server"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

type StorageConfig struct {
	Driver      string `koanf:"driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

type BlobConfig struct {
	Driver string   `koanf:"driver"`
	FSRoot string   `koanf:"fs_root"`
	S3     S3Config `koanf:"s3"`
}

type S3Config struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	PathStyle       bool   `koanf:"path_style"`
}

// ExportConfig locates sensor exports: record 7 reads "{key_prefix}7.{extension}".
type ExportConfig struct {
	Extension    string        `koanf:"extension"`
	KeyPrefix    string        `koanf:"key_prefix"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

type CalibrationConfig struct {
	DefaultGradient  float64 `koanf:"default_gradient"`
	DefaultIntercept float64 `koanf:"default_intercept"`
	// Timezone is the IANA zone in which "today" is evaluated.
	Timezone string `koanf:"timezone"`
}

type LockConfig struct {
	Driver        string        `koanf:"driver"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// MetricsConfig selects the metrics exporter: "prometheus" serves the
// text format on /metrics, "expvar" publishes JSON counters there instead.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Exporter  string `koanf:"exporter"`
	Namespace string `koanf:"namespace"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "neosweat.db"},
		Blob:    BlobConfig{Driver: "fs", FSRoot: "./exports", S3: S3Config{Region: "us-east-1"}},
		Export:  ExportConfig{Extension: "csv", FetchTimeout: 30 * time.Second},
		Calibration: CalibrationConfig{
			DefaultGradient:  1.1,
			DefaultIntercept: 0.2,
			Timezone:         "UTC",
		},
		Lock:    LockConfig{Driver: "memory", RedisAddr: "localhost:6379", TTL: 2 * time.Minute},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Server:  ServerConfig{Addr: ":8080", ReadTimeout: 15 * time.Second, WriteTimeout: 60 * time.Second},
		Metrics: MetricsConfig{Enabled: true, Exporter: "prometheus", Namespace: "neosweat"},
	}
}

// Load layers defaults, the YAML file at path (or $NEOSWEAT_CONFIG, or
// ./config.yaml when present) and environment overrides, then validates.
// An explicitly named file that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	configPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	explicit := path
	if explicit == "" {
		explicit = os.Getenv(ConfigPathEnvVar)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath, nil
	}
	return "", nil
}

// envTransform maps NEOSWEAT_SERVER__READ_TIMEOUT to server.read_timeout.
// Returning "" drops the variable.
func envTransform(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required when blob.driver is s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	switch c.Lock.Driver {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr: required when lock.driver is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.driver: unknown driver %q", c.Lock.Driver))
	}
	switch c.Metrics.Exporter {
	case "prometheus", "expvar":
	default:
		errs = append(errs, fmt.Errorf("metrics.exporter: unknown exporter %q", c.Metrics.Exporter))
	}
	def := domain.Calibration{Gradient: c.Calibration.DefaultGradient, Intercept: c.Calibration.DefaultIntercept}
	if err := def.Validate(); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			err = fmt.Errorf("calibration.default_%s: %s", ve.Field, ve.Reason)
		}
		errs = append(errs, err)
	}
	if _, err := time.LoadLocation(c.Calibration.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calibration.timezone: %w", err))
	}
	if c.Export.FetchTimeout <= 0 {
		errs = append(errs, errors.New("export.fetch_timeout: must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the calibration time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calibration.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
