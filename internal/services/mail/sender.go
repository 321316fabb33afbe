package mail

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/smtp"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/rabbitmq"
)

// Sender отправляет письма из очереди через SMTP-транспорт.
type Sender struct {
	transport   smtp.TransportInterface
	frontendURL string
	log         *slog.Logger
}

// NewSender создаёт Sender. frontendURL используется как база для ссылок в письмах.
func NewSender(log *slog.Logger, transport smtp.TransportInterface, frontendURL string) *Sender {
	return &Sender{
		transport:   transport,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log,
	}
}

// Handle разбирает сообщение очереди и отправляет письмо. Нераспознанное сообщение
// отбрасывается через rabbitmq.ErrDropMessage.
func (s *Sender) Handle(body []byte) error {
	const op = "mail.Handle"
	var msg models.MailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%s: error unmarshalling message: %w", op, rabbitmq.ErrDropMessage)
	}
	if msg.Email == "" || msg.Token == "" {
		return fmt.Errorf("%s: empty recipient or token: %w", op, rabbitmq.ErrDropMessage)
	}

	subject, text, err := s.render(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.sendEmail([]string{msg.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("email sent", slog.String("kind", string(msg.Kind)))
	return nil
}

func (s *Sender) render(msg models.MailMessage) (subject, body string, err error) {
	token := url.QueryEscape(msg.Token)
	switch msg.Kind {
	case models.MailVerify:
		link := s.frontendURL + "/verify?token=" + token
		return "Подтвердите email",
			"Здравствуйте!\n\nЧтобы подтвердить адрес, перейдите по ссылке:\n" + link +
				"\n\nЕсли вы не регистрировались, просто проигнорируйте это письмо.", nil
	case models.MailReset:
		link := s.frontendURL + "/reset-password?token=" + token
		return "Сброс пароля",
			"Здравствуйте!\n\nДля сброса пароля перейдите по ссылке:\n" + link +
				"\n\nСсылка действует один час. Если вы не запрашивали сброс, ничего делать не нужно.", nil
	}
	return "", "", fmt.Errorf("unknown mail kind %q: %w", msg.Kind, rabbitmq.ErrDropMessage)
}

func (s *Sender) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	return client.Quit()
}
