package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpiredToken подпись верна, но срок действия истёк.
	ErrExpiredToken = errors.New("token is expired")
	// ErrMalformedToken токен не разобран, подпись неверна или назначение не совпадает.
	ErrMalformedToken = errors.New("token is malformed")
)

// CustomClaims описывает данные, хранящиеся в токене.
type CustomClaims struct {
	Email       string `json:"email,omitempty"` // Email, для которого выпущен токен подтверждения
	Fingerprint string `json:"fgpt,omitempty"`  // Отпечаток хэша пароля для токена сброса
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя из sub.
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// Issue выпускает токен сессии для userID с TTL из конфигурации.
func (m *Maker) Issue(userID string) (string, error) {
	return m.IssueFor(AudienceSession, userID, m.tokenTTL, CustomClaims{})
}

// Verify проверяет токен сессии и возвращает идентификатор пользователя.
func (m *Maker) Verify(tokenStr string) (string, error) {
	claims, err := m.VerifyFor(AudienceSession, tokenStr)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// IssueFor выпускает токен с назначением aud. Поля Email и Fingerprint берутся из extra.
func (m *Maker) IssueFor(aud Audience, userID string, ttl time.Duration, extra CustomClaims) (string, error) {
	const op = "jwt.IssueFor"
	now := m.now()
	claims := CustomClaims{
		Email:       extra.Email,
		Fingerprint: extra.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{string(aud)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = m.current
	signed, err := token.SignedString(m.keys[m.current])
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// VerifyFor проверяет подпись, назначение и срок действия токена.
// Истёкший токен возвращает ErrExpiredToken, любой другой дефект даёт ErrMalformedToken.
func (m *Maker) VerifyFor(aud Audience, tokenStr string) (*CustomClaims, error) {
	const op = "jwt.VerifyFor"
	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(aud)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformedToken, err)
	}
	// leeway не продлевает exp
	if !m.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w: empty subject", op, ErrMalformedToken)
	}
	return claims, nil
}

func (m *Maker) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		kid = DefaultKeyVersion
	}
	key, ok := m.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key version %q", kid)
	}
	return key, nil
}
