package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	// Регистрация спецификации Swagger для /docs.
	_ "github.com/magabrotheeeer/asterscholar-auth/docs"
	"github.com/magabrotheeeer/asterscholar-auth/internal/app/authservice"
	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
)

// @title Asterscholar Auth API
// @version 1.0
// @description Учётные записи, сессии и оплата подписки.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env нужен только при локальном запуске
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sl.New(cfg.Env)
	logger.Info("starting auth-service", slog.String("env", cfg.Env))
	logger.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := authservice.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize auth-service", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("auth-service stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("auth-service stopped gracefully")
}
