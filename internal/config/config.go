// Package config loads the environment-driven configuration shared by the
// matchmaking API, notification bus, and game-server agent binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a binary needs that isn't passed on the CLI.
// Defaults mirror the values spec.md calls out; all are environment
// overridable so a real deployment can retune the TTLs without a rebuild.
type Config struct {
	RedisURL string

	ServerTTL  time.Duration
	SessionTTL time.Duration

	PlacementTimeout time.Duration
	BackfillTimeout  time.Duration

	DefaultMaxPlayers int

	PendingPlayerTimeout   time.Duration
	SessionShutdownTimeout time.Duration
	HeartbeatInterval      time.Duration

	JWTSecret string

	AllowedOrigins []string

	Orchestration  string
	AgonesSDKAddr  string
	GameServerPort int
	NotifBusURL    string
}

// Load reads configuration from the environment, applying the spec's
// defaults wherever a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		ServerTTL:  parseDuration(getEnv("SERVER_TTL", "10s"), 10*time.Second),
		SessionTTL: parseDuration(getEnv("SESSION_TTL", "60s"), 60*time.Second),

		PlacementTimeout: parseDuration(getEnv("PLACEMENT_TIMEOUT", "60s"), 60*time.Second),
		BackfillTimeout:  parseDuration(getEnv("BACKFILL_TIMEOUT", "5s"), 5*time.Second),

		DefaultMaxPlayers: parseInt(getEnv("DEFAULT_MAX_PLAYERS", "3"), 3),

		PendingPlayerTimeout:   parseDuration(getEnv("PENDING_PLAYER_TIMEOUT", "10s"), 10*time.Second),
		SessionShutdownTimeout: parseDuration(getEnv("SESSION_SHUTDOWN_TIMEOUT", "10m"), 10*time.Minute),
		HeartbeatInterval:      parseDuration(getEnv("HEARTBEAT_INTERVAL", "5s"), 5*time.Second),

		JWTSecret: getEnv("JWT_SECRET", "dev-insecure-placeholder-secret"),

		AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "*")},

		Orchestration:  getEnv("ORCHESTRATION", "local"),
		AgonesSDKAddr:  getEnv("AGONES_SDK_ADDR", "localhost:59357"),
		GameServerPort: parseInt(getEnv("GAME_SERVER_PORT", "7777"), 7777),
		NotifBusURL:    getEnv("NOTIFBUS_URL", "ws://localhost:8081"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// YAMLOverlay is the subset of Config a fleet catalog file may override.
// Anything left nil/empty falls back to whatever Load already resolved from
// the environment, so an overlay can set just the fields an operator cares
// about for a given deployment.
type YAMLOverlay struct {
	RedisURL          *string  `yaml:"redis_url"`
	DefaultMaxPlayers *int     `yaml:"default_max_players"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	Orchestration     *string  `yaml:"orchestration"`
}

// ApplyYAMLFile reads an optional fleet catalog file at path and overlays its
// fields onto cfg. Binaries only call this when a -config flag is set; the
// environment alone is a complete configuration without one.
func ApplyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config.ApplyYAMLFile: read %s: %w", path, err)
	}
	var overlay YAMLOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config.ApplyYAMLFile: parse %s: %w", path, err)
	}
	if overlay.RedisURL != nil {
		cfg.RedisURL = *overlay.RedisURL
	}
	if overlay.DefaultMaxPlayers != nil {
		cfg.DefaultMaxPlayers = *overlay.DefaultMaxPlayers
	}
	if len(overlay.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = overlay.AllowedOrigins
	}
	if overlay.Orchestration != nil {
		cfg.Orchestration = *overlay.Orchestration
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(value string, defaultValue int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
