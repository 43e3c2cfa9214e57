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

	"github.com/mooncorn/fleetmatch/internal/authn"
	"github.com/mooncorn/fleetmatch/internal/config"
	"github.com/mooncorn/fleetmatch/internal/directory"
	"github.com/mooncorn/fleetmatch/internal/notifbus"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "optional path to a YAML fleet catalog overlaying the environment-derived config")
	addr := flag.String("addr", ":8081", "address the notification bus listens on")
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

	verifier := authn.NewVerifier(cfg.JWTSecret)
	bus := notifbus.New(dir, verifier, logger)
	bus.Run(ctx)

	r := gin.Default()
	bus.RegisterRoutes(r)

	logger.Info("notification bus starting", zap.String("addr", *addr))
	go func() {
		if err := r.Run(*addr); err != nil {
			log.Println("server stopped:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
