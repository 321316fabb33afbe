// Package jwt реализует выпуск и проверку подписанных токенов сессии.
//
// Maker хранит набор ключей подписи по версиям (kid), текущую версию, TTL сессии
// и допустимое расхождение часов. Токены проверяются без обращения к хранилищу.
package jwt

import (
	"time"
)

// Audience разделяет назначения токенов: токен одного назначения не принимается для другого.
type Audience string

const (
	// AudienceSession — bearer-токен сессии.
	AudienceSession Audience = "asterscholar:auth"
	// AudienceVerify — токен подтверждения email.
	AudienceVerify Audience = "asterscholar:verify"
	// AudienceReset — токен сброса пароля.
	AudienceReset Audience = "asterscholar:reset"
)

// Maker выпускает и проверяет HS256 токены.
type Maker struct {
	keys     map[string][]byte // Ключи подписи по версиям
	current  string            // Версия, которой подписываются новые токены
	tokenTTL time.Duration     // Время жизни токена сессии
	leeway   time.Duration     // Допуск на расхождение часов для iat/nbf
	now      func() time.Time
}

// Option настраивает Maker.
type Option func(*options)

type options struct {
	kid      string
	previous map[string][]byte
	leeway   time.Duration
	now      func() time.Time
}

// WithKeyVersion задаёт версию текущего ключа.
func WithKeyVersion(kid string) Option {
	return func(o *options) {
		if kid != "" {
			o.kid = kid
		}
	}
}

// WithPreviousKey добавляет ключ прошлой версии, которым ещё можно проверять токены.
func WithPreviousKey(kid, secret string) Option {
	return func(o *options) {
		if kid != "" {
			o.previous[kid] = []byte(secret)
		}
	}
}

// WithLeeway задаёт допуск на расхождение часов.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// DefaultKeyVersion используется для токенов без заголовка kid.
const DefaultKeyVersion = "v1"

// NewJWTMaker создаёт Maker на основе секретного ключа и TTL сессии.
func NewJWTMaker(secretKey string, ttl time.Duration, opts ...Option) *Maker {
	o := options{
		kid:      DefaultKeyVersion,
		previous: map[string][]byte{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	keys := make(map[string][]byte, len(o.previous)+1)
	for kid, key := range o.previous {
		keys[kid] = key
	}
	keys[o.kid] = []byte(secretKey)

	return &Maker{
		keys:     keys,
		current:  o.kid,
		tokenTTL: ttl,
		leeway:   o.leeway,
		now:      o.now,
	}
}

// TTL возвращает время жизни токена сессии.
func (m *Maker) TTL() time.Duration {
	return m.tokenTTL
}
