package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
)

func TestBaseURL(t *testing.T) {
	assert.Equal(t, testModeURL, baseURL(config.Processor{Environment: "test_mode"}))
	assert.Equal(t, liveModeURL, baseURL(config.Processor{Environment: "live_mode"}))
	assert.Equal(t, "http://localhost:9999", baseURL(config.Processor{Environment: "live_mode", BaseURL: "http://localhost:9999/"}))
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	var got CreateCheckoutSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer key_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"cks_1","checkout_url":"https://checkout.dodopayments.com/cks_1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.Processor{APIKey: "key_123", BaseURL: srv.URL, Timeout: time.Second})
	resp, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionRequest{
		ProductCart: []ProductCartItem{{ProductID: "pro-monthly", Quantity: 1}},
		Customer:    Customer{Email: "a@example.com", Name: "a"},
		Metadata:    map[string]string{"user_id": "u1", "checkout_id": "c1"},
		ReturnURL:   "http://localhost:3000/dashboard",
	})
	require.NoError(t, err)
	assert.Equal(t, "cks_1", resp.SessionID)
	assert.Equal(t, "https://checkout.dodopayments.com/cks_1", resp.CheckoutURL)

	assert.Equal(t, "pro-monthly", got.ProductCart[0].ProductID)
	assert.Equal(t, "u1", got.Metadata["user_id"])
	assert.Equal(t, "c1", got.Metadata["checkout_id"])
}

func TestClient_CreateCheckoutSession_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "rejected request",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"message":"unknown product"}`))
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
				assert.Contains(t, apiErr.Body, "unknown product")
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
			},
		},
		{
			name: "missing checkout url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"session_id":"cks_1"}`))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(500 * time.Millisecond):
				case <-r.Context().Done():
				}
				w.WriteHeader(http.StatusOK)
			},
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(config.Processor{APIKey: "k", BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
			resp, err := c.CreateCheckoutSession(context.Background(), CreateCheckoutSessionRequest{})
			require.Error(t, err)
			assert.Nil(t, resp)
			tt.check(t, err)
		})
	}
}
