package authservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/asterscholar-auth/internal/cache"
	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/migrations"
	"github.com/magabrotheeeer/asterscholar-auth/internal/paymentprovider"
	"github.com/magabrotheeeer/asterscholar-auth/internal/rabbitmq"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/checkout"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/mail"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/webhook"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервис вместе с его подключениями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилище, применяет миграции, подключает Redis и RabbitMQ
// и собирает маршруты. Недоступный Redis не мешает старту.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "authservice.New"

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	db, err := repository.New(pingCtx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := &App{logger: logger, db: db}

	var eventCache webhook.EventCache
	a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Warn("redis unavailable, webhook dedup relies on storage only", sl.Err(err))
	} else {
		eventCache = a.cache
	}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.MailQueues())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	notifier := mail.NewNotifier(rabbitmq.NewPublisher(a.ch, rabbitmq.MailExchange))

	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, tokenOptions(cfg.JWTToken)...)

	authService := auth.New(logger, db, tokens, notifier, cfg.JWTToken)
	checkoutService := checkout.New(logger, db, paymentprovider.NewClient(cfg.Processor), cfg.Processor)
	webhookService := webhook.New(logger, webhook.NewVerifier(cfg.WebhookSecret), db, eventCache)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Auth:          authService,
		Guard:         guard.New(tokens, db),
		Checkout:      checkoutService,
		Webhook:       webhookService,
		Limiter:       middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		AllowedOrigin: cfg.CORSAllowedOrigin,
		Timeout:       cfg.TimeoutHTTP,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

func tokenOptions(cfg config.JWTToken) []jwt.Option {
	opts := []jwt.Option{
		jwt.WithKeyVersion(cfg.KeyVersion),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.PreviousSecretKey != "" {
		kid := cfg.PreviousKeyVersion
		if kid == "" {
			kid = jwt.DefaultKeyVersion
		}
		opts = append(opts, jwt.WithPreviousKey(kid, cfg.PreviousSecretKey))
	}
	return opts
}

// Run обслуживает запросы до отмены ctx, затем завершает сервер и закрывает подключения.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
