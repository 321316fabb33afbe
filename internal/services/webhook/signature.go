package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Заголовки подписи. Провайдер присылает либо схему Standard Webhooks,
// либо hex HMAC-SHA256 тела в X-Dodo-Signature (X-Signature).
const (
	HeaderDodoSignature    = "X-Dodo-Signature"
	HeaderSignature        = "X-Signature"
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	// DefaultTolerance допустимое расхождение webhook-timestamp с текущим временем.
	DefaultTolerance = 5 * time.Minute

	secretPrefix = "whsec_"
)

// Verifier проверяет подпись тела запроса общим секретом.
type Verifier struct {
	secret    []byte
	swKey     []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier создаёт Verifier. Секрет вида whsec_<base64> для схемы Standard Webhooks
// декодируется; hex-схема подписывает исходной строкой секрета.
func NewVerifier(secret string) *Verifier {
	swKey := []byte(secret)
	if rest, ok := strings.CutPrefix(secret, secretPrefix); ok {
		if decoded, err := base64.StdEncoding.DecodeString(rest); err == nil {
			swKey = decoded
		}
	}
	return &Verifier{
		secret:    []byte(secret),
		swKey:     swKey,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// Verify возвращает ErrInvalidSignature, если ни одна поддерживаемая подпись не совпала.
// Тело при этом не разбирается.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	if h.Get(HeaderWebhookSignature) != "" {
		return v.verifyStandard(h, body)
	}
	sig := h.Get(HeaderDodoSignature)
	if sig == "" {
		sig = h.Get(HeaderSignature)
	}
	if sig == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}
	return v.verifyHex(sig, body)
}

func (v *Verifier) verifyHex(sig string, body []byte) error {
	sig = strings.TrimSpace(sig)
	if len(sig) > 7 && strings.EqualFold(sig[:7], "sha256=") {
		sig = sig[7:]
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrInvalidSignature)
	}
	if !hmac.Equal(got, sign(v.secret, body)) {
		return fmt.Errorf("%w: mismatch", ErrInvalidSignature)
	}
	return nil
}

func (v *Verifier) verifyStandard(h http.Header, body []byte) error {
	id := h.Get(HeaderWebhookID)
	ts := h.Get(HeaderWebhookTimestamp)
	if id == "" || ts == "" {
		return fmt.Errorf("%w: missing webhook-id or webhook-timestamp", ErrInvalidSignature)
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad webhook-timestamp", ErrInvalidSignature)
	}
	if d := v.now().Sub(time.Unix(sec, 0)); d > v.tolerance || d < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	payload := make([]byte, 0, len(id)+len(ts)+len(body)+2)
	payload = append(payload, id...)
	payload = append(payload, '.')
	payload = append(payload, ts...)
	payload = append(payload, '.')
	payload = append(payload, body...)
	expected := sign(v.swKey, payload)

	// заголовок может содержать несколько подписей через пробел
	for _, part := range strings.Fields(h.Get(HeaderWebhookSignature)) {
		version, encoded, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: mismatch", ErrInvalidSignature)
}

func sign(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
