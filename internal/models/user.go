// Package models содержит доменные структуры: пользователь, состояние подписки,
// сессия оплаты и платёжное событие. Структуры используются в бизнес‑логике
// и при работе с хранилищем.
package models

import (
	"strings"
	"time"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UUID               string             // Уникальный идентификатор пользователя
	Email              string             // Электронная почта, хранится в нижнем регистре
	PasswordHash       string             // Хэш пароля пользователя
	IsActive           bool               // false: аккаунт отключён, токены не принимаются
	IsVerified         bool               // Email подтверждён
	SubscriptionStatus SubscriptionStatus // Статус оплаченной подписки
	// SubscriptionEventAt время последнего применённого платёжного события.
	SubscriptionEventAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserRead представление пользователя для клиента, без хэша пароля.
type UserRead struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	IsActive           bool               `json:"is_active"`
	IsVerified         bool               `json:"is_verified"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
}

// Read возвращает публичное представление пользователя.
func (u *User) Read() UserRead {
	return UserRead{
		ID:                 u.UUID,
		Email:              u.Email,
		IsActive:           u.IsActive,
		IsVerified:         u.IsVerified,
		SubscriptionStatus: u.SubscriptionStatus,
	}
}

// NormalizeEmail приводит email к каноническому виду для сравнения без учёта регистра.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserUpdate изменяемые пользователем поля. nil означает «не менять».
type UserUpdate struct {
	Email        *string
	PasswordHash *string
}
