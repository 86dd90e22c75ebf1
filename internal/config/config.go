// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Stage      string
	ImageTag   string
	ListenAddr string

	// CSVDir is the directory scanned for credential-export files.
	CSVDir string

	AWSRegion   string
	IAMEndpoint string
	CallTimeout time.Duration
	Concurrency int

	// DefaultKeyID and DefaultSecret are the fallback authority used when a
	// record carries no pair of its own.
	DefaultKeyID  string
	DefaultSecret string

	// DBPath enables the audit trail store when non-empty.
	DBPath string

	LogLevel         slog.Level
	LogFormat        string
	LogDir           string
	LogRetentionDays int
}

// HasDefaultAuthority returns true when both default AWS credentials are set.
func (c *Config) HasDefaultAuthority() bool {
	return c.DefaultKeyID != "" && c.DefaultSecret != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional. Defaults: IAMKEYCHECK_STAGE (dev), IAMKEYCHECK_CSV_DIR (secrets),
// IAMKEYCHECK_LISTEN_ADDR (127.0.0.1:8000), IAMKEYCHECK_AWS_REGION (us-east-1),
// IAMKEYCHECK_CALL_TIMEOUT (10s), IAMKEYCHECK_CONCURRENCY (4), IAMKEYCHECK_LOG_LEVEL (INFO),
// IAMKEYCHECK_LOG_FORMAT (text), IAMKEYCHECK_LOG_RETENTION_DAYS (7).
// The default authority is read from the standard AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
func Load() (*Config, error) {
	cfg := &Config{
		Stage:            envOr("IAMKEYCHECK_STAGE", "dev"),
		ImageTag:         envOr("IAMKEYCHECK_IMAGE_TAG", "0.1.0"),
		ListenAddr:       envOr("IAMKEYCHECK_LISTEN_ADDR", "127.0.0.1:8000"),
		CSVDir:           envOr("IAMKEYCHECK_CSV_DIR", "secrets"),
		AWSRegion:        envOr("IAMKEYCHECK_AWS_REGION", "us-east-1"),
		IAMEndpoint:      os.Getenv("IAMKEYCHECK_IAM_ENDPOINT"),
		CallTimeout:      10 * time.Second,
		Concurrency:      4,
		DefaultKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		DefaultSecret:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		DBPath:           os.Getenv("IAMKEYCHECK_DB_PATH"),
		LogLevel:         slog.LevelInfo,
		LogFormat:        "text",
		LogDir:           os.Getenv("IAMKEYCHECK_LOG_DIR"),
		LogRetentionDays: 7,
	}

	if v, ok := os.LookupEnv("IAMKEYCHECK_CALL_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("IAMKEYCHECK_CALL_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("IAMKEYCHECK_CALL_TIMEOUT must be positive, got %q", v)
		}
		cfg.CallTimeout = parsed
	}

	if v, ok := os.LookupEnv("IAMKEYCHECK_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("IAMKEYCHECK_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.Concurrency = n
	}

	if v, ok := os.LookupEnv("IAMKEYCHECK_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return nil, fmt.Errorf("IAMKEYCHECK_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("IAMKEYCHECK_LOG_FORMAT"); ok {
		format := strings.ToLower(strings.TrimSpace(v))
		if format != "text" && format != "json" {
			return nil, fmt.Errorf("IAMKEYCHECK_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = format
	}

	if v, ok := os.LookupEnv("IAMKEYCHECK_LOG_RETENTION_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("IAMKEYCHECK_LOG_RETENTION_DAYS must be a non-negative integer, got %q", v)
		}
		cfg.LogRetentionDays = n
	}

	return cfg, nil
}

// envOr returns the value of key, or def when the variable is unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
