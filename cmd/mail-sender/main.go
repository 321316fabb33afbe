package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/asterscholar-auth/internal/app/sender"
	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadMailSender()
	logger := sl.New(cfg.Env)

	logger.Info("starting mail sender", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sender.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sender app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("sender app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("sender app stopped gracefully")
}
