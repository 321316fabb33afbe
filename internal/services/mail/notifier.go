// Package mail доставляет письма подтверждения email и сброса пароля:
// Notifier ставит письмо в очередь, Sender читает очередь и отправляет по SMTP.
package mail

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// MessagePublisher публикует сообщение в брокер с ключом маршрутизации.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Notifier ставит письма в очередь отправки.
type Notifier struct {
	pub MessagePublisher
}

// NewNotifier создаёт Notifier поверх издателя.
func NewNotifier(pub MessagePublisher) *Notifier {
	return &Notifier{pub: pub}
}

// SendVerification ставит в очередь письмо со ссылкой подтверждения email.
func (n *Notifier) SendVerification(ctx context.Context, email, token string) error {
	const op = "mail.SendVerification"
	if err := n.publish(ctx, models.MailVerify, email, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendPasswordReset ставит в очередь письмо со ссылкой сброса пароля.
func (n *Notifier) SendPasswordReset(ctx context.Context, email, token string) error {
	const op = "mail.SendPasswordReset"
	if err := n.publish(ctx, models.MailReset, email, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (n *Notifier) publish(ctx context.Context, kind models.MailKind, email, token string) error {
	return n.pub.Publish(ctx, string(kind), models.MailMessage{Kind: kind, Email: email, Token: token})
}
