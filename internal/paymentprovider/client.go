// Package paymentprovider HTTP-клиент API платёжного провайдера Dodo Payments.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
)

const (
	testModeURL = "https://test.dodopayments.com"
	liveModeURL = "https://live.dodopayments.com"

	maxErrorBody = 2048
)

// ErrInvalidResponse провайдер ответил 2xx, но без адреса сессии.
var ErrInvalidResponse = errors.New("invalid processor response")

// APIError ответ провайдера с кодом вне 2xx.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor returned status %d: %s", e.StatusCode, e.Body)
}

// Client вызывает API Dodo Payments с bearer-ключом.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент. BaseURL из конфигурации перекрывает адрес окружения.
func NewClient(cfg config.Processor) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     baseURL(cfg),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func baseURL(cfg config.Processor) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Environment == "live_mode" {
		return liveModeURL
	}
	return testModeURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// CreateCheckoutSession создаёт сессию оплаты у провайдера. Запрос не повторяется.
func (c *Client) CreateCheckoutSession(ctx context.Context, reqParams CreateCheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	req, err := c.newRequest(ctx, http.MethodPost, "/checkouts", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s: %w", op, &APIError{StatusCode: resp.StatusCode, Body: string(b)})
	}

	var session CheckoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.CheckoutURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidResponse)
	}
	return &session, nil
}
