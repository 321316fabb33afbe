// Package scheduler процесс фоновых задач: по расписанию закрывает сессии
// оплаты, которые так и не были оплачены.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/asterscholar-auth/internal/services/scheduler"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	spec             string
	logger           *slog.Logger
}

func waitForDB(ctx context.Context, dsn string, timeout time.Duration) (*repository.Storage, error) {
	var lastErr error
	for range 10 {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		db, err := repository.New(pingCtx, dsn)
		cancel()
		if err == nil {
			return db, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, fmt.Errorf("database not ready after retries: %w", lastErr)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.SchedulerConfig, logger *slog.Logger) (*App, error) {
	db, err := waitForDB(ctx, cfg.StorageConnectionString, cfg.StorageTimeout)
	if err != nil {
		return nil, err
	}

	return &App{
		schedulerService: schedulerservice.NewSchedulerService(db, logger, cfg.CheckoutTTL, cfg.JobTimeout),
		db:               db,
		spec:             cfg.JanitorSpec,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := a.schedulerService.Start(a.spec); err != nil {
		_ = a.db.Close()
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down scheduler service")

	// дождаться текущего прогона
	<-a.schedulerService.Stop().Done()
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
