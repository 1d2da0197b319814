package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Vision     VisionConfig     `yaml:"vision"`
	Auth       AuthConfig       `yaml:"auth"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Worker     WorkerConfig     `yaml:"worker"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VisionConfig contains vision model settings.
type VisionConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
	// BaseURL points at an OpenAI-compatible endpoint; empty uses OpenAI.
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	MaxTokens     int      `yaml:"max_tokens"`
	MaxImageBytes int64    `yaml:"max_image_bytes"`
	Timeout       Duration `yaml:"timeout"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// UploadsConfig contains uploaded image storage settings.
type UploadsConfig struct {
	Dir       string   `yaml:"dir"`
	Retention Duration `yaml:"retention"`
	S3        S3Config `yaml:"s3"`
}

// S3Config configures the optional S3-compatible mirror for uploads.
// An empty bucket keeps uploads local-only.
type S3Config struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// NormalizerConfig contains completion normalizer settings.
type NormalizerConfig struct {
	AllowDegraded bool `yaml:"allow_degraded"`
	PreviewLength int  `yaml:"preview_length"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("MOCKLENS_CONFIG_PATH", "config/mocklens.yaml")

	// Missing file is not an error; defaults apply.
	if err := loadYAMLFile(cfg, configPath, true); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, path, false); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal loads configuration like Load but skips secret validation. It
// serves CLI commands that work on local data without the server's keys.
func LoadLocal() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("MOCKLENS_CONFIG_PATH", "config/mocklens.yaml")
	if err := loadYAMLFile(cfg, configPath, true); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validateShape(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(150 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/mocklens.db",
		},
		Vision: VisionConfig{
			Model:         "gpt-4o",
			MaxTokens:     4096,
			MaxImageBytes: 20 << 20,
			Timeout:       Duration(120 * time.Second),
		},
		Uploads: UploadsConfig{
			Dir:       "data/uploads",
			Retention: Duration(24 * time.Hour),
			S3: S3Config{
				Region:    "us-east-1",
				URLExpiry: Duration(15 * time.Minute),
			},
		},
		Normalizer: NormalizerConfig{
			AllowDegraded: true,
			PreviewLength: 240,
		},
		Worker: WorkerConfig{
			SweepInterval: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadYAMLFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty, well-formed env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("MOCKLENS_PORT", &cfg.Server.Port)
	envDuration("MOCKLENS_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("MOCKLENS_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("MOCKLENS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("MOCKLENS_DB_PATH", &cfg.Database.Path)

	// Vision (OPENAI_API_KEY and OPENAI_BASE_URL are industry convention)
	envString("OPENAI_API_KEY", &cfg.Vision.APIKey)
	envString("OPENAI_BASE_URL", &cfg.Vision.BaseURL)
	envString("MOCKLENS_VISION_MODEL", &cfg.Vision.Model)
	envInt("MOCKLENS_VISION_MAX_TOKENS", &cfg.Vision.MaxTokens)
	envDuration("MOCKLENS_VISION_TIMEOUT", &cfg.Vision.Timeout)
	if v := os.Getenv("MOCKLENS_MAX_IMAGE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Vision.MaxImageBytes = n
		}
	}

	// Auth
	envString("MOCKLENS_API_KEY", &cfg.Auth.APIKey)

	// Uploads
	envString("MOCKLENS_UPLOADS_DIR", &cfg.Uploads.Dir)
	envDuration("MOCKLENS_UPLOAD_RETENTION", &cfg.Uploads.Retention)
	envString("MOCKLENS_S3_BUCKET", &cfg.Uploads.S3.Bucket)
	envString("MOCKLENS_S3_ENDPOINT", &cfg.Uploads.S3.Endpoint)
	envString("MOCKLENS_S3_REGION", &cfg.Uploads.S3.Region)
	envString("MOCKLENS_S3_ACCESS_KEY", &cfg.Uploads.S3.AccessKey)
	envString("MOCKLENS_S3_SECRET_KEY", &cfg.Uploads.S3.SecretKey)
	if v := os.Getenv("MOCKLENS_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Uploads.S3.UseSSL = &useSSL
	}
	envDuration("MOCKLENS_S3_URL_EXPIRY", &cfg.Uploads.S3.URLExpiry)

	// Normalizer
	if v := os.Getenv("MOCKLENS_ALLOW_DEGRADED"); v != "" {
		cfg.Normalizer.AllowDegraded = v == "true" || v == "1"
	}
	envInt("MOCKLENS_PREVIEW_LENGTH", &cfg.Normalizer.PreviewLength)

	// Worker
	envDuration("MOCKLENS_SWEEP_INTERVAL", &cfg.Worker.SweepInterval)

	// Log
	envString("MOCKLENS_LOG_LEVEL", &cfg.Log.Level)
	envString("MOCKLENS_LOG_FORMAT", &cfg.Log.Format)
}

// validate checks that required configuration values are set.
// In dev mode (MOCKLENS_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if err := c.validateShape(); err != nil {
		return err
	}

	if IsDevMode() {
		return nil
	}
	if c.Vision.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("MOCKLENS_API_KEY is required")
	}
	return nil
}

// validateShape checks the settings that do not depend on secrets.
func (c *Config) validateShape() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Vision.MaxImageBytes <= 0 {
		return errors.New("vision.max_image_bytes must be positive")
	}

	if c.Uploads.S3.Bucket != "" && c.Uploads.S3.Endpoint == "" {
		return errors.New("uploads.s3.endpoint is required when a bucket is set")
	}
	return nil
}

// IsDevMode reports whether MOCKLENS_DEV_MODE is set to true.
func IsDevMode() bool {
	return os.Getenv("MOCKLENS_DEV_MODE") == "true"
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
