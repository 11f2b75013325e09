package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7480"
	DefaultDBFileName  = ".canonstore.db"
	DefaultStoreDir    = ".canonstore-objects"
	DefaultLogLevel    = "info"
	DefaultDigest      = "blake3"
	DefaultBackend     = "local"
	configFileName     = ".canonstore.toml"
	DefaultS3Region    = "us-east-1"
	DefaultFetchAgent  = "canonstore-fetcher/1"
	DefaultDailyAt     = "00:00"
	DefaultSweepBatch  = 500
	DefaultBatchItems  = 20
	DefaultMaxAttempts = 4

	DefaultMaxFileBytes       int64 = 20 * 1024 * 1024
	DefaultMaxFormBytes       int64 = 30 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024

	configDirEnvKey          = "CANONSTORE_CONFIG_DIR"
	trustProjectConfigEnvKey = "CANONSTORE_TRUST_PROJECT_CONFIG"
)

const (
	DefaultCommitTimeout    = 2 * time.Minute
	DefaultRetryInitial     = 100 * time.Millisecond
	DefaultRetryMax         = 2 * time.Second
	DefaultStrayObjectGrace = 24 * time.Hour
	DefaultFetchTimeout     = 30 * time.Second
	DefaultTokenTTL         = 365 * 24 * time.Hour
)

// Duration is a time.Duration that reads and writes TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	LocalRoot string `toml:"local_root"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	PathStyle bool   `toml:"path_style"`
	Digest    string `toml:"digest"`
}

// LimitsConfig bounds request sizes and the commit window.
type LimitsConfig struct {
	MaxFileBytes       int64    `toml:"max_file_bytes"`
	MaxFormBytes       int64    `toml:"max_form_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	MaxBatchItems      int      `toml:"max_batch_items"`
	CommitTimeout      Duration `toml:"commit_timeout"`
}

// RetryConfig bounds object-store retries.
type RetryConfig struct {
	MaxAttempts     int      `toml:"max_attempts"`
	InitialInterval Duration `toml:"initial_interval"`
	MaxInterval     Duration `toml:"max_interval"`
}

// ReconcilerConfig controls the scheduled orphan sweep.
type ReconcilerConfig struct {
	Enabled           bool     `toml:"enabled"`
	DailyAt           string   `toml:"daily_at"`
	Timezone          string   `toml:"timezone"`
	BatchSize         int      `toml:"batch_size"`
	DeletesPerSecond  float64  `toml:"deletes_per_second"`
	SweepStrayObjects bool     `toml:"sweep_stray_objects"`
	StrayObjectGrace  Duration `toml:"stray_object_grace"`
}

// FetchConfig configures downloads for item_from_web.
type FetchConfig struct {
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// AuthConfig holds token settings. The signing key is usually supplied via env.
type AuthConfig struct {
	JWTSigningKey  string   `toml:"jwt_signing_key"`
	AdminTokenHash string   `toml:"admin_token_hash"`
	TokenTTL       Duration `toml:"token_ttl"`
}

// Config defines runtime configuration for canonstore.
type Config struct {
	APIURL                   string           `toml:"api_url"`
	DBPath                   string           `toml:"db_path"`
	LogLevel                 string           `toml:"log_level"`
	Storage                  StorageConfig    `toml:"storage"`
	Limits                   LimitsConfig     `toml:"limits"`
	Retry                    RetryConfig      `toml:"retry"`
	Reconciler               ReconcilerConfig `toml:"reconciler"`
	Fetch                    FetchConfig      `toml:"fetch"`
	Auth                     AuthConfig       `toml:"auth"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend: DefaultBackend,
			Region:  DefaultS3Region,
			Digest:  DefaultDigest,
		},
		Limits: LimitsConfig{
			MaxFileBytes:       DefaultMaxFileBytes,
			MaxFormBytes:       DefaultMaxFormBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
			MaxBatchItems:      DefaultBatchItems,
			CommitTimeout:      Duration{DefaultCommitTimeout},
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			InitialInterval: Duration{DefaultRetryInitial},
			MaxInterval:     Duration{DefaultRetryMax},
		},
		Reconciler: ReconcilerConfig{
			Enabled:          true,
			DailyAt:          DefaultDailyAt,
			Timezone:         "UTC",
			BatchSize:        DefaultSweepBatch,
			StrayObjectGrace: Duration{DefaultStrayObjectGrace},
		},
		Fetch: FetchConfig{
			Timeout:   Duration{DefaultFetchTimeout},
			UserAgent: DefaultFetchAgent,
		},
		Auth: AuthConfig{
			TokenTTL: Duration{DefaultTokenTTL},
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
		if cfg.Storage.LocalRoot == "" {
			cfg.Storage.LocalRoot = filepath.Join(cwd, DefaultStoreDir)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"CANONSTORE_API_URL", &cfg.APIURL},
		{"CANONSTORE_DB", &cfg.DBPath},
		{"CANONSTORE_LOG_LEVEL", &cfg.LogLevel},
		{"CANONSTORE_STORAGE_BACKEND", &cfg.Storage.Backend},
		{"CANONSTORE_S3_ENDPOINT", &cfg.Storage.Endpoint},
		{"CANONSTORE_S3_ACCESS_KEY", &cfg.Storage.AccessKey},
		{"CANONSTORE_S3_SECRET_KEY", &cfg.Storage.SecretKey},
		{"CANONSTORE_S3_BUCKET", &cfg.Storage.Bucket},
		{"CANONSTORE_JWT_SIGNING_KEY", &cfg.Auth.JWTSigningKey},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.dst = value
		}
	}
}

func (c *Config) normalize() {
	d := Default()
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = d.LogLevel
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Digest == "" {
		c.Storage.Digest = d.Storage.Digest
	}
	if c.Storage.Region == "" {
		c.Storage.Region = d.Storage.Region
	}
	if c.Limits.MaxFileBytes <= 0 {
		c.Limits.MaxFileBytes = d.Limits.MaxFileBytes
	}
	if c.Limits.MaxFormBytes <= 0 {
		c.Limits.MaxFormBytes = d.Limits.MaxFormBytes
	}
	if c.Limits.MultipartMaxMemory <= 0 {
		c.Limits.MultipartMaxMemory = d.Limits.MultipartMaxMemory
	}
	if c.Limits.MaxBatchItems <= 0 {
		c.Limits.MaxBatchItems = d.Limits.MaxBatchItems
	}
	if c.Limits.CommitTimeout.Duration <= 0 {
		c.Limits.CommitTimeout = d.Limits.CommitTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.InitialInterval.Duration <= 0 {
		c.Retry.InitialInterval = d.Retry.InitialInterval
	}
	if c.Retry.MaxInterval.Duration <= 0 {
		c.Retry.MaxInterval = d.Retry.MaxInterval
	}
	if c.Reconciler.DailyAt == "" {
		c.Reconciler.DailyAt = d.Reconciler.DailyAt
	}
	if c.Reconciler.Timezone == "" {
		c.Reconciler.Timezone = d.Reconciler.Timezone
	}
	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = d.Reconciler.BatchSize
	}
	if c.Reconciler.DeletesPerSecond < 0 {
		c.Reconciler.DeletesPerSecond = 0
	}
	if c.Reconciler.StrayObjectGrace.Duration <= 0 {
		c.Reconciler.StrayObjectGrace = d.Reconciler.StrayObjectGrace
	}
	if c.Fetch.Timeout.Duration <= 0 {
		c.Fetch.Timeout = d.Fetch.Timeout
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = d.Fetch.UserAgent
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		c.Auth.TokenTTL = d.Auth.TokenTTL
	}
}

// Validate reports configuration errors that would prevent the server from starting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case "s3":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.endpoint and storage.bucket are required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Limits.MaxFormBytes < c.Limits.MaxFileBytes {
		return fmt.Errorf("limits.max_form_bytes must be >= limits.max_file_bytes")
	}
	if _, err := time.LoadLocation(c.Reconciler.Timezone); err != nil {
		return fmt.Errorf("reconciler.timezone: %w", err)
	}
	return nil
}
