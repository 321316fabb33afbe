package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

type envelope struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp"`
	Data      struct {
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

// ParseEvent разбирает конверт события. Идентификатор берётся из id, event_id
// или заголовка webhook-id; без него событие нельзя дедуплицировать.
// Без timestamp событие считается произошедшим в момент получения.
func ParseEvent(h http.Header, body []byte, receivedAt time.Time) (*models.PaymentEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	id := firstNonEmpty(env.ID, env.EventID, h.Get(HeaderWebhookID))
	if id == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	occurredAt := receivedAt
	if env.Timestamp != nil && !env.Timestamp.IsZero() {
		occurredAt = env.Timestamp.UTC()
	}

	return &models.PaymentEvent{
		EventID:    id,
		Type:       env.Type,
		UserUID:    metaString(env.Data.Metadata, "user_id", "userId"),
		CheckoutID: metaString(env.Data.Metadata, "checkout_id", "checkoutId"),
		OccurredAt: occurredAt,
		ReceivedAt: receivedAt,
	}, nil
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := meta[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
