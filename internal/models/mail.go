package models

// MailKind — тип письма в очереди отправки.
type MailKind string

const (
	MailVerify MailKind = "verify" // подтверждение email
	MailReset  MailKind = "reset"  // сброс пароля
)

// MailMessage — сообщение для сервиса отправки писем. Токен одноразовый и не логируется.
type MailMessage struct {
	Kind  MailKind `json:"kind"`
	Email string   `json:"email"`
	Token string   `json:"token"`
}
