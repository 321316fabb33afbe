package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// ReconcileEvent атомарно записывает событие в журнал дедупликации и применяет его
// к статусу подписки пользователя. Запись журнала и изменение статуса фиксируются
// одной транзакцией: при ошибке не сохраняется ни то, ни другое.
//
// Повторно доставленное событие не меняет состояние и возвращает OutcomeDuplicate.
func (s *Storage) ReconcileEvent(ctx context.Context, ev *models.PaymentEvent) (models.EventOutcome, error) {
	const op = "storage.ReconcileEvent"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Конкурентная доставка того же события ждёт на уникальном индексе до коммита первой.
	var inserted string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payment_events (event_id, event_type, user_uid, checkout_id, occurred_at, outcome, received_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, 'pending', $6)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id`,
		ev.EventID, ev.Type, ev.UserUID, ev.CheckoutID, ev.OccurredAt, ev.ReceivedAt).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	outcome, err := applyEvent(ctx, tx, ev)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE payment_events SET outcome = $1 WHERE event_id = $2`,
		outcome, ev.EventID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return outcome, nil
}

func applyEvent(ctx context.Context, tx *sql.Tx, ev *models.PaymentEvent) (models.EventOutcome, error) {
	if _, ok := models.TargetStatus(ev.Type); !ok {
		return models.OutcomeIgnored, nil
	}
	if _, err := uuid.Parse(ev.UserUID); err != nil {
		return models.OutcomeUnresolved, nil
	}

	user, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1 FOR UPDATE`, ev.UserUID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OutcomeUnresolved, nil
	}
	if err != nil {
		return "", err
	}

	d := models.Decide(user, ev)
	if d.AdvanceWatermark {
		if _, err = tx.ExecContext(ctx, `
			UPDATE users
			SET subscription_status = $1, subscription_event_at = $2, updated_at = NOW()
			WHERE uid = $3`, d.Next, ev.OccurredAt, user.UUID); err != nil {
			return "", err
		}
	}

	if (d.Outcome == models.OutcomeApplied || d.Outcome == models.OutcomeNoop) && models.CompletesCheckout(ev.Type) {
		if _, err := uuid.Parse(ev.CheckoutID); err == nil {
			if _, err = tx.ExecContext(ctx, `
				UPDATE checkout_sessions
				SET status = $1, updated_at = NOW()
				WHERE checkout_id = $2 AND user_uid = $3 AND status <> $1`,
				models.CheckoutCompleted, ev.CheckoutID, user.UUID); err != nil {
				return "", err
			}
		}
	}
	return d.Outcome, nil
}

// GetPaymentEvent возвращает запись журнала по идентификатору события.
func (s *Storage) GetPaymentEvent(ctx context.Context, eventID string) (*models.PaymentEvent, error) {
	const op = "storage.GetPaymentEvent"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var ev models.PaymentEvent
	var userUID, checkoutID sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT event_id, event_type, user_uid, checkout_id, occurred_at, outcome, received_at
		FROM payment_events WHERE event_id = $1`, eventID).
		Scan(&ev.EventID, &ev.Type, &userUID, &checkoutID, &ev.OccurredAt, &ev.Outcome, &ev.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ev.UserUID = userUID.String
	ev.CheckoutID = checkoutID.String
	return &ev, nil
}
