package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray .env is picked up
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Upload.MaxAttempts)
	assert.False(t, cfg.Upload.RequireSuccess)
	assert.Equal(t, 30*time.Minute, cfg.Cleanup.IdleTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.OfflineMode())
	assert.Equal(t, "127.0.0.1:8090", cfg.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("UPLOAD_MAX_ATTEMPTS", "3")
	t.Setenv("UPLOAD_INITIAL_BACKOFF", "250ms")
	t.Setenv("UPLOAD_REQUIRE_SUCCESS", "true")
	t.Setenv("FIXTURES_DIR", "./fixtures")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Upload.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Upload.InitialBackoff)
	assert.True(t, cfg.Upload.RequireSuccess)
	assert.True(t, cfg.OfflineMode())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RECORDER_API_KEY=from-dotenv\nREDIS_DB=4\n"), 0o600))
	chdir(t, dir)
	// godotenv never overrides variables already set; register cleanup for the ones it sets
	t.Setenv("RECORDER_API_KEY", "")
	require.NoError(t, os.Unsetenv("RECORDER_API_KEY"))
	t.Setenv("REDIS_DB", "")
	require.NoError(t, os.Unsetenv("REDIS_DB"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Server.APIKey)
	assert.Equal(t, 4, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "70000")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("zero attempts", func(t *testing.T) {
		t.Setenv("UPLOAD_MAX_ATTEMPTS", "0")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("no interview source", func(t *testing.T) {
		t.Setenv("BACKEND_URL", "")
		_, err := Load()
		require.Error(t, err)
	})
}
