// Package authservice собирает HTTP-сервис учётных записей и оплаты подписки.
package authservice

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/auth/password"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/auth/verify"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/health"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/payment/checkout"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/handlers/users"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// AuthService операции учётных записей, нужные обработчикам.
type AuthService interface {
	register.Service
	login.Service
	verify.Service
	password.Service
	users.Updater
}

// Authenticator определяет текущего пользователя запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.User, error)
}

// Deps зависимости маршрутов.
type Deps struct {
	Auth     AuthService
	Guard    Authenticator
	Checkout checkout.Service
	Webhook  paymentwebhook.Service
	Limiter  *middlewarectx.RateLimiter
	// AllowedOrigin единственный источник, которому разрешены CORS-запросы с учётными данными.
	AllowedOrigin string
	Timeout       time.Duration
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middlewarectx.Recoverer(logger),
		middlewarectx.Metrics,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{d.AllowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	if d.Timeout > 0 {
		r.Use(middleware.Timeout(d.Timeout))
	}

	// Открытые конечные точки с ограничением частоты
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter))

		r.Post("/auth/register", register.New(logger, d.Auth).ServeHTTP)
		r.Post("/auth/jwt/login", login.New(logger, d.Auth).ServeHTTP)
		r.Post("/auth/request-verify-token", verify.NewRequestToken(logger, d.Auth).ServeHTTP)
		r.Post("/auth/verify", verify.NewVerify(logger, d.Auth).ServeHTTP)
		r.Post("/auth/forgot-password", password.NewForgot(logger, d.Auth).ServeHTTP)
		r.Post("/auth/reset-password", password.NewReset(logger, d.Auth).ServeHTTP)

		// Webhook endpoint (без аутентификации, проверяется подпись)
		r.Post("/payments/webhook", paymentwebhook.New(logger, d.Webhook).ServeHTTP)
	})

	// Защищённые маршруты: каждый обработчик сам проверяет токен через Guard
	r.Post("/auth/jwt/logout", logout.New(logger, d.Guard).ServeHTTP)
	r.Get("/users/me", users.NewMe(logger, d.Guard).ServeHTTP)
	r.Patch("/users/me", users.NewUpdate(logger, d.Guard, d.Auth).ServeHTTP)
	r.Get("/me", users.NewGreeting(logger, d.Guard).ServeHTTP)
	r.Post("/payments/checkout", checkout.New(logger, d.Guard, d.Checkout).ServeHTTP)

	r.Get("/health", health.New().ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
