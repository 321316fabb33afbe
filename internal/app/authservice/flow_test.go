package authservice

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/asterscholar-auth/internal/migrations"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/paymentprovider"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/checkout"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/mail"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/webhook"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

const flowWebhookSecret = "whsec_Zmxvdy10ZXN0LXNlY3JldA=="

// mailbox captures queued mail instead of publishing to a broker.
type mailbox struct {
	mu   sync.Mutex
	msgs []models.MailMessage
}

func (m *mailbox) Publish(_ context.Context, _ string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, message.(models.MailMessage))
	return nil
}

func (m *mailbox) last(kind models.MailKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].Kind == kind {
			return m.msgs[i].Token
		}
	}
	return ""
}

type fakeProcessor struct {
	server *httptest.Server
	mu     sync.Mutex
	last   paymentprovider.CreateCheckoutSessionRequest
}

func newFakeProcessor(t *testing.T) *fakeProcessor {
	p := &fakeProcessor{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req paymentprovider.CreateCheckoutSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.last = req
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(paymentprovider.CheckoutSessionResponse{
			SessionID:   "cks_1",
			CheckoutURL: "https://pay.test/session/cks_1",
		})
	}))
	t.Cleanup(p.server.Close)
	return p
}

func setupStorage(t *testing.T) *repository.Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := repository.New(ctx, connStr)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	t.Cleanup(func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return storage
}

type flowClient struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *flowClient) do(method, path, contentType, body string, header http.Header) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func signedWebhook(body []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(flowWebhookSecret))
	mac.Write(body)
	h := http.Header{}
	h.Set(webhook.HeaderDodoSignature, hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestFlow_RegisterVerifyLoginCheckoutWebhook(t *testing.T) {
	db := setupStorage(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	box := &mailbox{}
	processor := newFakeProcessor(t)

	jwtCfg := config.JWTToken{JWTSecretKey: "flow-secret", TokenTTL: time.Hour, VerifyTTL: time.Hour, ResetTTL: time.Hour}
	tokens := jwt.NewJWTMaker(jwtCfg.JWTSecretKey, jwtCfg.TokenTTL)
	procCfg := config.Processor{
		APIKey:    "test-key",
		BaseURL:   processor.server.URL,
		Timeout:   5 * time.Second,
		ReturnURL: "https://app.example.com/dashboard",
	}

	router := chi.NewRouter()
	RegisterRoutes(router, log, Deps{
		Auth:          auth.New(log, db, tokens, mail.NewNotifier(box), jwtCfg),
		Guard:         guard.New(tokens, db),
		Checkout:      checkout.New(log, db, paymentprovider.NewClient(procCfg), procCfg),
		Webhook:       webhook.New(log, webhook.NewVerifier(flowWebhookSecret), db, nil),
		Limiter:       middlewarectx.NewRateLimiter(1000, 1000),
		AllowedOrigin: "https://app.example.com",
	})
	c := &flowClient{t: t, router: router}

	code, body := c.do(http.MethodPost, "/auth/register", "application/json",
		`{"email":"Alice@Example.com","password":"correct-horse-battery"}`, nil)
	require.Equal(t, http.StatusCreated, code, body)
	userID := body["data"].(map[string]any)["id"].(string)

	code, _ = c.do(http.MethodPost, "/auth/register", "application/json",
		`{"email":"alice@example.com","password":"correct-horse-battery"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	verifyToken := box.last(models.MailVerify)
	require.NotEmpty(t, verifyToken)
	code, body = c.do(http.MethodPost, "/auth/verify", "application/json", fmt.Sprintf(`{"token":%q}`, verifyToken), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["data"].(map[string]any)["is_verified"])

	form := url.Values{"username": {"alice@example.com"}, "password": {"wrong-password-1"}}
	code, body = c.do(http.MethodPost, "/auth/jwt/login", "application/x-www-form-urlencoded", form.Encode(), nil)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "LOGIN_BAD_CREDENTIALS", body["error"])

	form.Set("password", "correct-horse-battery")
	code, body = c.do(http.MethodPost, "/auth/jwt/login", "application/x-www-form-urlencoded", form.Encode(), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "bearer", body["token_type"])
	c.token = body["access_token"].(string)

	code, body = c.do(http.MethodGet, "/users/me", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "none", body["data"].(map[string]any)["subscription_status"])

	code, body = c.do(http.MethodPost, "/payments/checkout", "application/json", `{"product_id":"pro-monthly"}`, nil)
	require.Equal(t, http.StatusOK, code, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "https://pay.test/session/cks_1", data["checkout_url"])
	checkoutID := data["checkout_id"].(string)

	processor.mu.Lock()
	assert.Equal(t, userID, processor.last.Metadata["user_id"])
	assert.Equal(t, checkoutID, processor.last.Metadata["checkout_id"])
	assert.Contains(t, processor.last.ReturnURL, "checkout_id="+checkoutID)
	processor.mu.Unlock()

	event := []byte(fmt.Sprintf(
		`{"id":"evt_flow_1","type":"payment.succeeded","timestamp":%q,"data":{"metadata":{"user_id":%q,"checkout_id":%q}}}`,
		time.Now().UTC().Format(time.RFC3339), userID, checkoutID))
	webhookClient := &flowClient{t: t, router: router}

	code, _ = webhookClient.do(http.MethodPost, "/payments/webhook", "application/json", string(event), http.Header{
		webhook.HeaderDodoSignature: {"deadbeef"},
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = webhookClient.do(http.MethodPost, "/payments/webhook", "application/json", string(event), signedWebhook(event))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "applied", body["outcome"])

	code, body = webhookClient.do(http.MethodPost, "/payments/webhook", "application/json", string(event), signedWebhook(event))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", body["outcome"])

	code, body = c.do(http.MethodGet, "/users/me", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["data"].(map[string]any)["subscription_status"])

	code, body = c.do(http.MethodGet, "/me", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hello alice@example.com!", body["message"])

	session, err := db.GetCheckoutSession(context.Background(), checkoutID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutCompleted, session.Status)

	// a deactivated account loses access with the same token
	authService := auth.New(log, db, tokens, mail.NewNotifier(box), jwtCfg)
	require.NoError(t, authService.Deactivate(context.Background(), "alice@example.com"))
	code, _ = c.do(http.MethodGet, "/users/me", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestFlow_PasswordReset(t *testing.T) {
	db := setupStorage(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	box := &mailbox{}

	jwtCfg := config.JWTToken{JWTSecretKey: "flow-secret", TokenTTL: time.Hour, VerifyTTL: time.Hour, ResetTTL: time.Hour}
	tokens := jwt.NewJWTMaker(jwtCfg.JWTSecretKey, jwtCfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, log, Deps{
		Auth:     auth.New(log, db, tokens, mail.NewNotifier(box), jwtCfg),
		Guard:    guard.New(tokens, db),
		Checkout: noCheckout{},
		Webhook:  noWebhook{},
		Limiter:  middlewarectx.NewRateLimiter(1000, 1000),
	})
	c := &flowClient{t: t, router: router}

	code, _ := c.do(http.MethodPost, "/auth/register", "application/json", `{"email":"bob@example.com","password":"first-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = c.do(http.MethodPost, "/auth/forgot-password", "application/json", `{"email":"nobody@example.com"}`, nil)
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = c.do(http.MethodPost, "/auth/forgot-password", "application/json", `{"email":"bob@example.com"}`, nil)
	require.Equal(t, http.StatusAccepted, code)

	resetToken := box.last(models.MailReset)
	require.NotEmpty(t, resetToken)
	reset := fmt.Sprintf(`{"token":%q,"password":"second-password-2"}`, resetToken)

	code, _ = c.do(http.MethodPost, "/auth/reset-password", "application/json", reset, nil)
	require.Equal(t, http.StatusOK, code)

	code, body := c.do(http.MethodPost, "/auth/reset-password", "application/json", reset, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_TOKEN", body["error"])

	code, _ = c.do(http.MethodPost, "/auth/jwt/login", "application/json", `{"username":"bob@example.com","password":"second-password-2"}`, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodPost, "/auth/jwt/login", "application/json", `{"username":"bob@example.com","password":"first-password-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
