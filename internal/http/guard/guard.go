// Package guard проверяет bearer-токен входящего запроса и определяет текущего пользователя.
//
// Authenticate вызывается явно из каждого защищённого обработчика. Токена недостаточно:
// пользователь всегда перечитывается из хранилища, и отключённая учётная запись теряет
// доступ сразу, не дожидаясь истечения токена.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/response"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

// ErrUnauthenticated запрос без действительного токена или от отключённой учётной записи.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenVerifier проверяет токен сессии и возвращает идентификатор пользователя.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserGetter читает пользователя из хранилища.
type UserGetter interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Guard определяет пользователя по заголовку Authorization.
type Guard struct {
	tokens TokenVerifier
	users  UserGetter
}

// New создаёт Guard.
func New(tokens TokenVerifier, users UserGetter) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate возвращает активного пользователя запроса. Ошибки токена, неизвестный
// пользователь и is_active=false дают ErrUnauthenticated; сбой хранилища возвращается как есть.
func (g *Guard) Authenticate(r *http.Request) (*models.User, error) {
	const op = "guard.Authenticate"

	token, ok := bearerToken(r)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	userUID, err := g.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnauthenticated, err)
	}

	user, err := g.users.GetUser(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	return user, nil
}

// Reject пишет ответ на неуспешный Authenticate: 401 с единым сообщением
// или 503, если не удалось прочитать пользователя.
func Reject(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, ErrUnauthenticated) {
		log.Info("request rejected", sl.Err(err))
		w.Header().Set("WWW-Authenticate", "Bearer")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(response.MsgUnauthorized))
		return
	}
	log.Error("failed to authenticate request", sl.Err(err))
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, response.Error(response.MsgUnavailable))
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
