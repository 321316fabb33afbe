// Package scheduler запускает периодические задачи сервиса. Сейчас это одна задача:
// незавершённые сессии оплаты старше CheckoutTTL помечаются истёкшими.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/metrics"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
)

// CheckoutRepository помечает зависшие сессии оплаты.
type CheckoutRepository interface {
	ExpireStaleCheckouts(ctx context.Context, olderThan time.Time) (int64, error)
}

// SchedulerService выполняет задачи по расписанию cron.
type SchedulerService struct {
	repo        CheckoutRepository
	log         *slog.Logger
	cron        *cron.Cron
	checkoutTTL time.Duration
	timeout     time.Duration
	now         func() time.Time
}

// NewSchedulerService создаёт SchedulerService. timeout ограничивает один прогон задачи.
func NewSchedulerService(repo CheckoutRepository, log *slog.Logger, checkoutTTL, timeout time.Duration) *SchedulerService {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	return &SchedulerService{
		repo:        repo,
		log:         log,
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger))),
		checkoutTTL: checkoutTTL,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Start регистрирует задачу по расписанию spec (синтаксис cron, например "@every 15m") и запускает планировщик.
func (s *SchedulerService) Start(spec string) error {
	const op = "scheduler.Start"
	if _, err := s.cron.AddFunc(spec, s.runExpireCheckouts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.cron.Start()
	s.log.Info("checkout janitor scheduled", slog.String("schedule", spec), slog.Duration("ttl", s.checkoutTTL))
	return nil
}

// Stop останавливает планировщик. Возвращённый контекст завершается, когда закончится текущий прогон.
func (s *SchedulerService) Stop() context.Context {
	return s.cron.Stop()
}

func (s *SchedulerService) runExpireCheckouts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.ExpireCheckouts(ctx); err != nil {
		s.log.Error("failed to expire checkouts", sl.Err(err))
	}
}

// ExpireCheckouts один раз помечает истёкшими сессии старше checkoutTTL.
func (s *SchedulerService) ExpireCheckouts(ctx context.Context) (int64, error) {
	const op = "scheduler.ExpireCheckouts"
	n, err := s.repo.ExpireStaleCheckouts(ctx, s.now().Add(-s.checkoutTTL))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		metrics.ExpiredCheckoutsTotal.Add(float64(n))
		s.log.Info("expired stale checkouts", slog.Int64("count", n))
	}
	return n, nil
}
