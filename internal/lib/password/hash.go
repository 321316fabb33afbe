// Package password реализует функции для безопасного хеширования и проверки паролей.
//
// GetHash создает bcrypt-хеш пароля для безопасного хранения.
// CompareHash сравнивает исходный bcrypt-хеш с введённым паролем, проверяя их соответствие.
// CompareDummy выполняет ту же работу для несуществующего пользователя.
package password

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinLength минимальная длина пароля в байтах.
	MinLength = 8
	// MaxLength ограничение bcrypt.
	MaxLength = 72
)

// ErrWeakPassword пароль не проходит политику.
var ErrWeakPassword = errors.New("weak password")

// dummyHash хэш, с которым сравнивается пароль при неизвестном email,
// чтобы время ответа не выдавало наличие аккаунта.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// GetHash принимает пароль пользователя и возвращает его bcrypt‑хэш.
//
// Используется для безопасного хранения паролей в базе данных.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает nil, если пароль соответствует хэшу, иначе ошибку.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CompareDummy тратит столько же времени, сколько CompareHash, и всегда возвращает ошибку.
func CompareDummy(externalPassword string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(externalPassword))
	return bcrypt.ErrMismatchedHashAndPassword
}

// Validate проверяет пароль по политике: длина MinLength..MaxLength байт
// и отсутствие локальной части email внутри пароля.
func Validate(password, email string) error {
	if len(password) < MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinLength)
	}
	if len(password) > MaxLength {
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeakPassword, MaxLength)
	}
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	if len(local) >= 3 && strings.Contains(strings.ToLower(password), local) {
		return fmt.Errorf("%w: must not contain e-mail", ErrWeakPassword)
	}
	return nil
}

// Fingerprint возвращает короткий отпечаток хэша пароля. Меняется при каждой смене пароля.
func Fingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
