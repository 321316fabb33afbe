// Package webhook принимает уведомления платёжного провайдера и согласует их
// со статусом подписки пользователя.
//
// Порядок обработки: проверка подписи по сырому телу, разбор конверта,
// блокировка event_id в Redis, затем дедупликация и переход статуса одной
// транзакцией в хранилище. Постоянные ошибки (неизвестный тип, нет пользователя)
// записываются и подтверждаются, временные возвращаются вызывающему для повтора.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/metrics"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

var (
	// ErrInvalidSignature возвращается, если подпись отсутствует или не совпадает.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent возвращается, если тело не разбирается или в нём нет идентификатора события.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrInFlight возвращается, пока то же событие обрабатывается другим запросом.
	ErrInFlight = errors.New("webhook event in flight")
)

const (
	lockTTL = 30 * time.Second
	doneTTL = 24 * time.Hour
)

// Reconciler атомарно записывает событие и применяет его к пользователю.
type Reconciler interface {
	ReconcileEvent(ctx context.Context, ev *models.PaymentEvent) (models.EventOutcome, error)
}

// EventCache быстрый слой перед хранилищем: блокировка event_id на время
// обработки и отметка об уже обработанных событиях.
type EventCache interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service обрабатывает webhook-запросы.
type Service struct {
	log      *slog.Logger
	verifier *Verifier
	store    Reconciler
	cache    EventCache
	now      func() time.Time
}

// New создаёт Service. cache может быть nil: тогда от повторов защищает только хранилище.
func New(log *slog.Logger, verifier *Verifier, store Reconciler, cache EventCache) *Service {
	return &Service{
		log:      log,
		verifier: verifier,
		store:    store,
		cache:    cache,
		now:      time.Now,
	}
}

// Handle проверяет и применяет одно событие. Возвращает событие с заполненным Outcome.
func (s *Service) Handle(ctx context.Context, h http.Header, body []byte) (*models.PaymentEvent, error) {
	const op = "webhook.Handle"

	if err := s.verifier.Verify(h, body); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ev, err := ParseEvent(h, body, s.now().UTC())
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log := s.log.With(sl.Op(op), slog.String("event_id", ev.EventID), slog.String("event_type", ev.Type))

	if s.cache != nil {
		var done models.EventOutcome
		if found, err := s.cache.Get(ctx, doneKey(ev.EventID), &done); err != nil {
			log.Warn("event cache unavailable", sl.Err(err))
		} else if found {
			ev.Outcome = models.OutcomeDuplicate
			metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeDuplicate)).Inc()
			log.Info("webhook event already processed", slog.String("outcome", string(done)))
			return ev, nil
		}

		release, ok, err := s.cache.Lock(ctx, lockKey(ev.EventID), lockTTL)
		switch {
		case err != nil:
			log.Warn("event lock unavailable, relying on store dedup", sl.Err(err))
		case !ok:
			metrics.WebhookEventsTotal.WithLabelValues("in_flight").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrInFlight)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("failed to release event lock", sl.Err(err))
				}
			}()
		}
	}

	outcome, err := s.store.ReconcileEvent(ctx, ev)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ev.Outcome = outcome
	metrics.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()

	if s.cache != nil && outcome != models.OutcomeDuplicate {
		if err := s.cache.Set(ctx, doneKey(ev.EventID), outcome, doneTTL); err != nil {
			log.Warn("failed to remember processed event", sl.Err(err))
		}
	}

	attrs := []any{slog.String("outcome", string(outcome)), slog.String("user_uid", ev.UserUID)}
	switch outcome {
	case models.OutcomeUnresolved, models.OutcomeRejected:
		log.Warn("webhook event not applied", attrs...)
	default:
		log.Info("webhook event processed", attrs...)
	}
	return ev, nil
}

func lockKey(eventID string) string { return "webhook:lock:" + eventID }

func doneKey(eventID string) string { return "webhook:done:" + eventID }
