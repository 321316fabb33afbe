package models

import "time"

// Типы событий провайдера, которые меняют статус подписки.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
	EventSubscriptionCanceled = "subscription.canceled"
)

// eventTargets целевой статус для каждого известного типа события.
var eventTargets = map[string]SubscriptionStatus{
	EventSubscriptionCreated:  SubscriptionActive,
	EventPaymentSucceeded:     SubscriptionActive,
	EventPaymentFailed:        SubscriptionPastDue,
	EventSubscriptionCanceled: SubscriptionCanceled,
}

// TargetStatus возвращает статус, в который переводит событие eventType.
// ok == false для нераспознанных типов.
func TargetStatus(eventType string) (SubscriptionStatus, bool) {
	s, ok := eventTargets[eventType]
	return s, ok
}

// CompletesCheckout сообщает, что событие завершает сессию оплаты.
func CompletesCheckout(eventType string) bool {
	return eventType == EventPaymentSucceeded || eventType == EventSubscriptionCreated
}

// EventOutcome результат обработки платёжного события. Сохраняется вместе с записью дедупликации.
type EventOutcome string

const (
	OutcomeApplied    EventOutcome = "applied"    // статус изменён
	OutcomeNoop       EventOutcome = "noop"       // статус уже целевой
	OutcomeStale      EventOutcome = "stale"      // событие старше последнего применённого
	OutcomeRejected   EventOutcome = "rejected"   // переход запрещён машиной состояний
	OutcomeIgnored    EventOutcome = "ignored"    // неизвестный тип события
	OutcomeUnresolved EventOutcome = "unresolved" // пользователь не найден или не указан
	OutcomeDuplicate  EventOutcome = "duplicate"  // событие уже обработано, в базу не пишется
)

// PaymentEvent входящее неизменяемое событие провайдера.
type PaymentEvent struct {
	EventID    string    // Ключ идемпотентности
	Type       string    // Тип события
	UserUID    string    // metadata.user_id
	CheckoutID string    // metadata.checkout_id
	OccurredAt time.Time // Время события у провайдера или время получения
	ReceivedAt time.Time // Время получения
	Outcome    EventOutcome
}

// Decision решение о применении события к текущему состоянию пользователя.
type Decision struct {
	Outcome EventOutcome
	Next    SubscriptionStatus // Статус после события, имеет смысл при AdvanceWatermark
	// AdvanceWatermark сдвинуть время последнего учтённого события.
	AdvanceWatermark bool
}

// Decide вычисляет решение для события ev и текущего состояния user.
//
// Порядок: неизвестный тип -> ignored; событие старше отметки -> stale;
// тот же статус -> noop; запрещённый переход -> rejected; иначе applied.
// Все исходы, кроме ignored и stale, сдвигают отметку времени: более раннее событие,
// пришедшее после отклонённого, становится stale и не меняет статус.
func Decide(user *User, ev *PaymentEvent) Decision {
	target, ok := TargetStatus(ev.Type)
	if !ok {
		return Decision{Outcome: OutcomeIgnored}
	}
	if user.SubscriptionEventAt != nil && ev.OccurredAt.Before(*user.SubscriptionEventAt) {
		return Decision{Outcome: OutcomeStale}
	}
	current := user.SubscriptionStatus
	if current == "" {
		current = SubscriptionNone
	}
	if current == target {
		return Decision{Outcome: OutcomeNoop, Next: target, AdvanceWatermark: true}
	}
	if !CanTransition(current, target) {
		return Decision{Outcome: OutcomeRejected, Next: current, AdvanceWatermark: true}
	}
	return Decision{Outcome: OutcomeApplied, Next: target, AdvanceWatermark: true}
}

// CheckoutStatus состояние локальной записи о сессии оплаты.
type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"   // запись создана, провайдер ещё не ответил
	CheckoutOpen      CheckoutStatus = "open"      // сессия создана у провайдера
	CheckoutFailed    CheckoutStatus = "failed"    // провайдер вернул ошибку
	CheckoutCompleted CheckoutStatus = "completed" // пришло завершающее событие
	CheckoutExpired   CheckoutStatus = "expired"   // не завершена за отведённое время
)

// CheckoutSession запись корреляции между пользователем и сессией провайдера.
type CheckoutSession struct {
	CheckoutID         string
	UserUID            string
	ProductID          string
	ProcessorSessionID string
	CheckoutURL        string
	Status             CheckoutStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
