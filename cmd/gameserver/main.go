package main

import (
	"flag"
	"os"

	"agones.dev/agones/pkg/util/signals"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mooncorn/fleetmatch/internal/agent"
	"github.com/mooncorn/fleetmatch/internal/apiclient"
	"github.com/mooncorn/fleetmatch/internal/config"
	"github.com/mooncorn/fleetmatch/internal/models"
	"github.com/mooncorn/fleetmatch/internal/orchestrator"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "optional path to a YAML fleet catalog overlaying the environment-derived config")
	serverIDFlag := flag.String("server-id", "", "overrides SERVER_ID; a random id is generated if neither is set")
	flag.Parse()

	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.TimeKey = "timestamp"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *configPath != "" {
		if err := config.ApplyYAMLFile(cfg, *configPath); err != nil {
			logger.Fatal("failed to apply config overlay", zap.Error(err))
		}
	}

	ctx, cancel := signals.NewSigKillContext()
	defer cancel()

	serverID := uuid.New()
	rawServerID := *serverIDFlag
	if rawServerID == "" {
		rawServerID = os.Getenv("SERVER_ID")
	}
	if rawServerID != "" {
		if id, err := uuid.Parse(rawServerID); err == nil {
			serverID = id
		}
	}

	orchestration := models.Orchestration(cfg.Orchestration)
	var orch orchestrator.Orchestrator
	switch orchestration {
	case models.OrchestrationAgones:
		agonesAdapter, err := orchestrator.DialAgones(ctx, cfg.AgonesSDKAddr, logger)
		if err != nil {
			logger.Fatal("failed to connect to agones sdk sidecar", zap.Error(err))
		}
		defer agonesAdapter.Close()
		orch = agonesAdapter
	case models.OrchestrationGameLift:
		orch = orchestrator.NewGameLift()
	default:
		orch = orchestrator.NewLocal()
	}

	matchmakingAPIURL := os.Getenv("MATCHMAKING_API_URL")
	if matchmakingAPIURL == "" {
		matchmakingAPIURL = "http://localhost:8080"
	}
	authToken := os.Getenv("SERVER_AUTH_TOKEN")

	client := apiclient.New(matchmakingAPIURL, authToken, logger)

	agentCfg := agent.Config{
		ServerID:               serverID,
		Port:                   uint16(cfg.GameServerPort),
		Orchestration:          orchestration,
		MaxPlayers:             cfg.DefaultMaxPlayers,
		HeartbeatInterval:      cfg.HeartbeatInterval,
		PendingPlayerTimeout:   cfg.PendingPlayerTimeout,
		SessionShutdownTimeout: cfg.SessionShutdownTimeout,
	}

	a := agent.New(agentCfg, orch, client, logger)

	go a.SubscribeNotifications(cfg.NotifBusURL, authToken)

	logger.Info("game server agent starting", zap.String("server_id", serverID.String()))
	if err := a.Run(ctx); err != nil {
		logger.Fatal("agent run failed", zap.Error(err))
	}
	logger.Info("shutting down")
}
