// Package auth содержит бизнес-логику учётных записей: регистрацию, вход,
// подтверждение email, сброс пароля и изменение профиля.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/password"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

var (
	// ErrInvalidCredentials неверный email или пароль, без различия случаев.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled возвращается при верном пароле отключённой учётной записи.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailTaken email уже зарегистрирован.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword пароль не проходит политику.
	ErrWeakPassword = password.ErrWeakPassword
	// ErrInvalidToken недействительный токен подтверждения или сброса.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUserNotFound учётная запись не найдена.
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository описывает контракт хранилища учётных записей.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) (*models.User, error)
	SetUserActive(ctx context.Context, userUID string, active bool) error
	SetUserVerified(ctx context.Context, userUID string) error
	UpdatePassword(ctx context.Context, userUID, passwordHash string) error
}

// TokenMaker выпускает токены сессии и одноразовые токены подтверждения/сброса.
type TokenMaker interface {
	Issue(userID string) (string, error)
	IssueFor(aud jwt.Audience, userID string, ttl time.Duration, extra jwt.CustomClaims) (string, error)
	VerifyFor(aud jwt.Audience, token string) (*jwt.CustomClaims, error)
}

// Notifier доставляет пользователю письма с токенами.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Service реализует операции учётных записей.
type Service struct {
	log       *slog.Logger
	users     UserRepository
	tokens    TokenMaker
	notifier  Notifier
	verifyTTL time.Duration
	resetTTL  time.Duration
}

// New создаёт Service. TTL токенов подтверждения и сброса берутся из cfg.
func New(log *slog.Logger, users UserRepository, tokens TokenMaker, notifier Notifier, cfg config.JWTToken) *Service {
	return &Service{
		log:       log,
		users:     users,
		tokens:    tokens,
		notifier:  notifier,
		verifyTTL: cfg.VerifyTTL,
		resetTTL:  cfg.ResetTTL,
	}
}

// Register создаёт активного неподтверждённого пользователя и отправляет письмо подтверждения.
// Ошибка отправки письма не отменяет регистрацию: письмо можно запросить повторно.
func (s *Service) Register(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "auth.Register"

	email = models.NormalizeEmail(email)
	if err := password.Validate(rawPassword, email); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:              email,
		PasswordHash:       hashed,
		IsActive:           true,
		IsVerified:         false,
		SubscriptionStatus: models.SubscriptionNone,
	}
	uid, err := s.users.RegisterUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.UUID = uid

	s.sendVerification(ctx, &user)
	return &user, nil
}

// Login проверяет пароль и выпускает токен сессии. Для неизвестного email
// выполняется такое же по стоимости сравнение с фиктивным хэшем.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = password.CompareDummy(rawPassword)
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err = password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if !user.IsActive {
		return "", fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	token, err := s.tokens.Issue(user.UUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// RequestVerifyToken повторно отправляет письмо подтверждения. Снаружи всегда
// завершается успешно для неизвестных, отключённых и уже подтверждённых адресов.
func (s *Service) RequestVerifyToken(ctx context.Context, email string) error {
	const op = "auth.RequestVerifyToken"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive || user.IsVerified {
		return nil
	}
	s.sendVerification(ctx, user)
	return nil
}

// VerifyEmail подтверждает email по токену. Повторное подтверждение ничего не меняет.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	const op = "auth.VerifyEmail"

	claims, err := s.tokens.VerifyFor(jwt.AudienceVerify, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}
	user, err := s.users.GetUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// токен выпущен для прежнего адреса
	if !user.IsActive || claims.Email != user.Email {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if user.IsVerified {
		return user, nil
	}

	if err = s.users.SetUserVerified(ctx, user.UUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.IsVerified = true
	return user, nil
}

// RequestPasswordReset отправляет письмо со ссылкой сброса. Результат не зависит
// от существования аккаунта.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "auth.RequestPasswordReset"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil
	}

	token, err := s.tokens.IssueFor(jwt.AudienceReset, user.UUID, s.resetTTL,
		jwt.CustomClaims{Fingerprint: password.Fingerprint(user.PasswordHash)})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.log.Error("failed to send password reset email", sl.Op(op), sl.Err(err))
	}
	return nil
}

// ResetPassword устанавливает новый пароль по токену сброса. Токен перестаёт
// действовать после первой успешной смены пароля.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	claims, err := s.tokens.VerifyFor(jwt.AudienceReset, token)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}
	user, err := s.users.GetUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive || claims.Fingerprint != password.Fingerprint(user.PasswordHash) {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if err = password.Validate(newPassword, user.Email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.users.UpdatePassword(ctx, user.UUID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateMe меняет email и/или пароль текущего пользователя. nil-поля не меняются.
// Смена email снимает подтверждение и отправляет письмо для подтверждения нового адреса.
func (s *Service) UpdateMe(ctx context.Context, user *models.User, email, newPassword *string) (*models.User, error) {
	const op = "auth.UpdateMe"

	var upd models.UserUpdate
	targetEmail := user.Email
	if email != nil {
		normalized := models.NormalizeEmail(*email)
		upd.Email = &normalized
		targetEmail = normalized
	}
	if newPassword != nil {
		if err := password.Validate(*newPassword, targetEmail); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		hashed, err := password.GetHash(*newPassword)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		upd.PasswordHash = &hashed
	}
	if upd.Email == nil && upd.PasswordHash == nil {
		return user, nil
	}

	updated, err := s.users.UpdateUser(ctx, user.UUID, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if upd.Email != nil && *upd.Email != models.NormalizeEmail(user.Email) {
		s.sendVerification(ctx, updated)
	}
	return updated, nil
}

// Deactivate отключает учётную запись. Выпущенные токены перестают приниматься сразу.
func (s *Service) Deactivate(ctx context.Context, email string) error {
	return s.setActive(ctx, "auth.Deactivate", email, false)
}

// Activate снова включает отключённую учётную запись.
func (s *Service) Activate(ctx context.Context, email string) error {
	return s.setActive(ctx, "auth.Activate", email, true)
}

func (s *Service) setActive(ctx context.Context, op, email string, active bool) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.users.SetUserActive(ctx, user.UUID, active); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account state changed", sl.Op(op), slog.String("user_uid", user.UUID), slog.Bool("active", active))
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	const op = "auth.sendVerification"
	token, err := s.tokens.IssueFor(jwt.AudienceVerify, user.UUID, s.verifyTTL, jwt.CustomClaims{Email: user.Email})
	if err != nil {
		s.log.Error("failed to issue verification token", sl.Op(op), sl.Err(err))
		return
	}
	if err = s.notifier.SendVerification(ctx, user.Email, token); err != nil {
		s.log.Error("failed to send verification email", sl.Op(op), sl.Err(err))
	}
}
