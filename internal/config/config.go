package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for interview-recorder
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Upload   UploadConfig
	Capture  CaptureConfig
	Fixtures FixturesConfig
	Journal  JournalConfig
	Redis    RedisConfig
	Cleanup  CleanupConfig
	LogLevel slog.Level
}

// ServerConfig holds HTTP control API configuration
type ServerConfig struct {
	Host   string
	Port   int
	APIKey string
}

// BackendConfig holds the recruiting backend connection
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// UploadConfig holds the per-clip upload policy
type UploadConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequireSuccess bool
}

// CaptureConfig holds capture device configuration
type CaptureConfig struct {
	VideoDevice string
	AudioDevice string
	FFmpegPath  string
}

// FixturesConfig enables offline mode when Dir is set
type FixturesConfig struct {
	Dir      string
	SpoolDir string
}

// JournalConfig holds the optional Postgres event journal
type JournalConfig struct {
	DSN           string
	MigrationsDir string
}

// RedisConfig holds Redis configuration for dashboard token storage
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// CleanupConfig holds reaper configuration
type CleanupConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
}

// Load loads configuration from environment variables, reading .env first when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:   getEnv("SERVER_HOST", "127.0.0.1"),
			Port:   getEnvAsInt("SERVER_PORT", 8090),
			APIKey: getEnv("RECORDER_API_KEY", ""),
		},
		Backend: BackendConfig{
			URL:     getEnv("BACKEND_URL", "http://127.0.0.1:8000/api"),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 30*time.Second),
		},
		Upload: UploadConfig{
			Timeout:        getEnvAsDuration("UPLOAD_TIMEOUT", 5*time.Minute),
			MaxAttempts:    getEnvAsInt("UPLOAD_MAX_ATTEMPTS", 1),
			InitialBackoff: getEnvAsDuration("UPLOAD_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getEnvAsDuration("UPLOAD_MAX_BACKOFF", 10*time.Second),
			RequireSuccess: getEnvAsBool("UPLOAD_REQUIRE_SUCCESS", false),
		},
		Capture: CaptureConfig{
			VideoDevice: getEnv("CAPTURE_VIDEO_DEVICE", "/dev/video0"),
			AudioDevice: getEnv("CAPTURE_AUDIO_DEVICE", "default"),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		},
		Fixtures: FixturesConfig{
			Dir:      getEnv("FIXTURES_DIR", ""),
			SpoolDir: getEnv("FIXTURES_SPOOL_DIR", "./spool"),
		},
		Journal: JournalConfig{
			DSN:           getEnv("JOURNAL_DSN", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cleanup: CleanupConfig{
			Interval:    getEnvAsDuration("CLEANUP_INTERVAL", time.Minute),
			IdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Fixtures.Dir == "" && c.Backend.URL == "" {
		return fmt.Errorf("either BACKEND_URL or FIXTURES_DIR is required")
	}

	if c.Upload.MaxAttempts < 1 {
		return fmt.Errorf("upload max attempts must be at least 1, got %d", c.Upload.MaxAttempts)
	}

	if c.Upload.Timeout <= 0 || c.Backend.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.Cleanup.Interval <= 0 || c.Cleanup.IdleTimeout <= 0 {
		return fmt.Errorf("cleanup interval and idle timeout must be positive")
	}

	return nil
}

// OfflineMode reports whether interviews are served from local fixtures
func (c *Config) OfflineMode() bool {
	return c.Fixtures.Dir != ""
}

// Addr returns the listen address of the control API
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err == nil {
			return level
		}
	}
	return defaultValue
}
