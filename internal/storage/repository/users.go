package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

const userColumns = `uid, email, password_hash, is_active, is_verified,
	subscription_status, subscription_event_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var eventAt sql.NullTime
	if err := row.Scan(&u.UUID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsVerified,
		&u.SubscriptionStatus, &eventAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if eventAt.Valid {
		u.SubscriptionEventAt = &eventAt.Time
	}
	return u, nil
}

// RegisterUser сохраняет нового пользователя и возвращает его UID.
// Если email уже занят (без учёта регистра), возвращает ErrUserExists.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	status := user.SubscriptionStatus
	if status == "" {
		status = models.SubscriptionNone
	}

	var newID string
	query := `INSERT INTO users (email, password_hash, is_active, is_verified, subscription_status)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING uid`
	if err := s.DB.QueryRowContext(ctx, query,
		models.NormalizeEmail(user.Email), user.PasswordHash, user.IsActive, user.IsVerified,
		status).Scan(&newID); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	// UID из токена или метаданных может быть произвольной строкой.
	if _, err := uuid.Parse(userUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUser меняет email и/или хэш пароля. Смена email сбрасывает is_verified.
// Возвращает обновлённого пользователя.
func (s *Storage) UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) (*models.User, error) {
	const op = "storage.UpdateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := uuid.Parse(userUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{}
	if upd.Email != nil {
		args = append(args, models.NormalizeEmail(*upd.Email))
		n := len(args)
		// is_verified сбрасывается только при фактической смене адреса
		sets = append(sets,
			fmt.Sprintf("is_verified = CASE WHEN lower(email) = $%d THEN is_verified ELSE FALSE END", n),
			fmt.Sprintf("email = $%d", n))
	}
	if upd.PasswordHash != nil {
		args = append(args, *upd.PasswordHash)
		sets = append(sets, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	args = append(args, userUID)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE uid = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetUserActive включает или отключает учётную запись.
func (s *Storage) SetUserActive(ctx context.Context, userUID string, active bool) error {
	const op = "storage.SetUserActive"
	return s.execUser(ctx, op, `UPDATE users SET is_active = $1, updated_at = NOW() WHERE uid = $2`, active, userUID)
}

// SetUserVerified отмечает email пользователя подтверждённым.
func (s *Storage) SetUserVerified(ctx context.Context, userUID string) error {
	const op = "storage.SetUserVerified"
	return s.execUser(ctx, op, `UPDATE users SET is_verified = TRUE, updated_at = NOW() WHERE uid = $1`, userUID)
}

// UpdatePassword заменяет хэш пароля пользователя.
func (s *Storage) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	return s.execUser(ctx, op, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE uid = $2`, passwordHash, userUID)
}

// execUser выполняет UPDATE одной строки users; последний аргумент UID.
func (s *Storage) execUser(ctx context.Context, op, query string, args ...any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := uuid.Parse(fmt.Sprint(args[len(args)-1])); err != nil {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
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
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}
