package models

// SubscriptionStatus статус подписки пользователя.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Valid сообщает, что статус входит в перечисление.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// allowedTransitions допустимые переходы между разными статусами.
// canceled -> active разрешён: провайдер может повторно прислать историю.
var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionNone:     {SubscriptionActive, SubscriptionCanceled},
	SubscriptionActive:   {SubscriptionPastDue, SubscriptionCanceled},
	SubscriptionPastDue:  {SubscriptionActive, SubscriptionCanceled},
	SubscriptionCanceled: {SubscriptionActive},
}

// CanTransition сообщает, допустим ли переход from -> to. Переход в тот же статус не является переходом.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
