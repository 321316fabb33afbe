package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	checkoutsvc "github.com/magabrotheeeer/asterscholar-auth/internal/services/checkout"
)

type stubGuard struct {
	user *models.User
	err  error
}

func (g stubGuard) Authenticate(*http.Request) (*models.User, error) { return g.user, g.err }

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) CreateCheckout(ctx context.Context, user *models.User, productID string) (*checkoutsvc.Result, error) {
	args := m.Called(ctx, user, productID)
	res, _ := args.Get(0).(*checkoutsvc.Result)
	return res, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCheckoutHandler(t *testing.T) {
	user := &models.User{UUID: "u1", Email: "a@x.com", IsActive: true}
	result := &checkoutsvc.Result{CheckoutURL: "https://pay.example/s/1", CheckoutID: "c1"}

	tests := []struct {
		name      string
		target    string
		body      string
		productID string
		mockRes   *checkoutsvc.Result
		mockErr   error
		wantCode  int
		wantError string
	}{
		{name: "product in body", target: "/payments/checkout", body: `{"product_id":"pro-monthly"}`, productID: "pro-monthly", mockRes: result, wantCode: http.StatusOK},
		{name: "product in query", target: "/payments/checkout?product_id=pro-yearly", productID: "pro-yearly", mockRes: result, wantCode: http.StatusOK},
		{
			name: "invalid product", target: "/payments/checkout", body: `{"product_id":"bad id"}`, productID: "bad id",
			mockErr: fmt.Errorf("checkout.CreateCheckout: %w", checkoutsvc.ErrInvalidProduct), wantCode: http.StatusUnprocessableEntity, wantError: "invalid product",
		},
		{
			name: "processor down", target: "/payments/checkout", body: `{"product_id":"pro-monthly"}`, productID: "pro-monthly",
			mockErr: fmt.Errorf("checkout.CreateCheckout: %w", checkoutsvc.ErrProcessorUnavailable), wantCode: http.StatusBadGateway, wantError: "payment processor unavailable",
		},
		{
			name: "store down", target: "/payments/checkout", body: `{"product_id":"pro-monthly"}`, productID: "pro-monthly",
			mockErr: errors.New("db"), wantCode: http.StatusInternalServerError, wantError: "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("CreateCheckout", mock.Anything, user, tt.productID).Return(tt.mockRes, tt.mockErr).Once()

			rec := httptest.NewRecorder()
			New(newNoopLogger(), stubGuard{user: user}, svc).ServeHTTP(rec,
				httptest.NewRequest(http.MethodPost, tt.target, bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				data := got["data"].(map[string]any)
				assert.Equal(t, "https://pay.example/s/1", data["checkout_url"])
				assert.Equal(t, "c1", data["checkout_id"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCheckoutHandler_Rejections(t *testing.T) {
	svc := new(ServiceMock)

	rec := httptest.NewRecorder()
	New(newNoopLogger(), stubGuard{err: guard.ErrUnauthenticated}, svc).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/payments/checkout", bytes.NewBufferString(`{"product_id":"p"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	New(newNoopLogger(), stubGuard{user: &models.User{UUID: "u1"}}, svc).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/payments/checkout", bytes.NewBufferString(`{"product_id":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything, mock.Anything)
}
