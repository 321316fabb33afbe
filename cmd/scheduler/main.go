package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/asterscholar-auth/internal/app/scheduler"
	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadScheduler()
	logger := sl.New(cfg.Env)
	logger.Info("starting scheduler", slog.String("env", cfg.Env), slog.String("schedule", cfg.JanitorSpec))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scheduler", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("scheduler stopped with error", sl.Err(err))
		os.Exit(1)
	}
}
