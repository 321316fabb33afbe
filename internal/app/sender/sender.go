// Package sender процесс отправки писем: читает почтовые очереди RabbitMQ
// и отправляет письма по SMTP.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/smtp"
	"github.com/magabrotheeeer/asterscholar-auth/internal/rabbitmq"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/mail"
)

// App представляет приложение отправки писем.
type App struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	sender *mail.Sender
	logger *slog.Logger
}

// New подключается к брокеру и объявляет почтовые очереди.
func New(cfg *config.MailSenderConfig, logger *slog.Logger) (*App, error) {
	const op = "sender.New"
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.MailQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	return &App{
		conn:   conn,
		ch:     ch,
		sender: mail.NewSender(logger, transport, cfg.FrontendURL),
		logger: logger,
	}, nil
}

// Run потребляет все почтовые очереди до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	for _, q := range rabbitmq.MailQueues() {
		if err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, q.QueueName, a.sender.Handle); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
