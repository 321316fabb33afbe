package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// CreateCheckoutSession сохраняет запись о сессии оплаты в статусе pending.
func (s *Storage) CreateCheckoutSession(ctx context.Context, cs models.CheckoutSession) error {
	const op = "storage.CreateCheckoutSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO checkout_sessions (checkout_id, user_uid, product_id, status)
			  VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query,
		cs.CheckoutID, cs.UserUID, cs.ProductID, models.CheckoutPending); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkCheckoutOpen фиксирует ответ провайдера: идентификатор и адрес сессии.
func (s *Storage) MarkCheckoutOpen(ctx context.Context, checkoutID, processorSessionID, checkoutURL string) error {
	const op = "storage.MarkCheckoutOpen"
	query := `UPDATE checkout_sessions
			  SET status = $1, processor_session_id = $2, checkout_url = $3, updated_at = NOW()
			  WHERE checkout_id = $4 AND status = $5`
	return s.execCheckout(ctx, op, query,
		models.CheckoutOpen, processorSessionID, checkoutURL, checkoutID, models.CheckoutPending)
}

// MarkCheckoutFailed переводит ожидающую сессию в failed.
func (s *Storage) MarkCheckoutFailed(ctx context.Context, checkoutID string) error {
	const op = "storage.MarkCheckoutFailed"
	query := `UPDATE checkout_sessions
			  SET status = $1, updated_at = NOW()
			  WHERE checkout_id = $2 AND status = $3`
	return s.execCheckout(ctx, op, query, models.CheckoutFailed, checkoutID, models.CheckoutPending)
}

func (s *Storage) execCheckout(ctx context.Context, op, query string, args ...any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrCheckoutNotFound)
	}
	return nil
}

// GetCheckoutSession возвращает сессию оплаты по локальному идентификатору.
func (s *Storage) GetCheckoutSession(ctx context.Context, checkoutID string) (*models.CheckoutSession, error) {
	const op = "storage.GetCheckoutSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := uuid.Parse(checkoutID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrCheckoutNotFound)
	}

	query := `SELECT checkout_id, user_uid, product_id, processor_session_id, checkout_url,
			      status, created_at, updated_at
			  FROM checkout_sessions
			  WHERE checkout_id = $1`
	var cs models.CheckoutSession
	var processorID, url sql.NullString
	err := s.DB.QueryRowContext(ctx, query, checkoutID).Scan(&cs.CheckoutID, &cs.UserUID, &cs.ProductID,
		&processorID, &url, &cs.Status, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrCheckoutNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cs.ProcessorSessionID = processorID.String
	cs.CheckoutURL = url.String
	return &cs, nil
}

// ExpireStaleCheckouts переводит в expired незавершённые сессии, созданные раньше olderThan.
// Возвращает число затронутых записей.
func (s *Storage) ExpireStaleCheckouts(ctx context.Context, olderThan time.Time) (int64, error) {
	const op = "storage.ExpireStaleCheckouts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE checkout_sessions
			  SET status = $1, updated_at = NOW()
			  WHERE status IN ($2, $3) AND created_at < $4`
	res, err := s.DB.ExecContext(ctx, query,
		models.CheckoutExpired, models.CheckoutPending, models.CheckoutOpen, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
