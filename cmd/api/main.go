package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mooncorn/fleetmatch/internal/apiserver"
	"github.com/mooncorn/fleetmatch/internal/authn"
	"github.com/mooncorn/fleetmatch/internal/backfill"
	"github.com/mooncorn/fleetmatch/internal/config"
	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/fleet"
	"github.com/mooncorn/fleetmatch/internal/placement"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "optional path to a YAML fleet catalog overlaying the environment-derived config")
	addr := flag.String("addr", ":8080", "address the matchmaking API listens on")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := directory.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to directory", zap.Error(err))
	}
	defer dir.Close()

	if err := dir.Ping(ctx); err != nil {
		logger.Fatal("directory health check failed", zap.Error(err))
	}
	logger.Info("connected to directory")

	registry := fleet.New(dir, cfg.ServerTTL, cfg.SessionTTL, logger)
	placementEngine := placement.New(registry, dir, cfg.PlacementTimeout, logger)
	backfillEngine := backfill.New(registry, dir, cfg.BackfillTimeout, logger)
	verifier := authn.NewVerifier(cfg.JWTSecret)

	handlers := apiserver.NewHandlers(registry, dir, placementEngine, backfillEngine, verifier, cfg.AllowedOrigins, cfg.DefaultMaxPlayers, logger)

	r := gin.Default()
	handlers.RegisterRoutes(r)

	logger.Info("matchmaking api starting", zap.String("addr", *addr))
	go func() {
		if err := r.Run(*addr); err != nil {
			log.Println("server stopped:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
