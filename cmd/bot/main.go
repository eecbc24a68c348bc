package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"blog_bot/internal/app"
	"blog_bot/internal/config"
	"blog_bot/internal/logger"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.L().Info("Application started")

	if err := application.Run(ctx); err != nil {
		logger.L().Errorf("Application exited with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Failed to shut down cleanly: %v", err)
	}

	logger.L().Info("Application stopped")
}
