package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_LoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, 10*time.Second, cfg.ServerTTL)
	require.Equal(t, 60*time.Second, cfg.SessionTTL)
	require.Equal(t, 3, cfg.DefaultMaxPlayers)
	require.Equal(t, 10*time.Minute, cfg.SessionShutdownTimeout)
}

func Test_LoadHonorsEnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("DEFAULT_MAX_PLAYERS", "8")
	t.Setenv("SERVER_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	require.Equal(t, 8, cfg.DefaultMaxPlayers)
	require.Equal(t, 30*time.Second, cfg.ServerTTL)
}

func Test_ApplyYAMLFileOverlaysOnlySetFields(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_max_players: 10
orchestration: agones
allowed_origins:
  - https://play.example.com
`), 0o644))

	require.NoError(t, ApplyYAMLFile(cfg, path))

	require.Equal(t, 10, cfg.DefaultMaxPlayers)
	require.Equal(t, "agones", cfg.Orchestration)
	require.Equal(t, []string{"https://play.example.com"}, cfg.AllowedOrigins)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func Test_ApplyYAMLFileReturnsErrorForMissingFile(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	err = ApplyYAMLFile(cfg, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
