// Package checkout создаёт сессии оплаты у платёжного провайдера.
//
// Перед вызовом провайдера сохраняется локальная запись сессии со своим checkout_id.
// Этот идентификатор и user_id передаются провайдеру в metadata и возвращаются
// в webhook-событиях, по ним событие сопоставляется с пользователем.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/metrics"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/paymentprovider"
)

var (
	// ErrInvalidProduct идентификатор продукта некорректен или не входит в каталог.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrProcessorUnavailable провайдер не создал сессию. Повторять запрос решает клиент.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

var productIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Repository хранит локальные записи сессий оплаты.
type Repository interface {
	CreateCheckoutSession(ctx context.Context, cs models.CheckoutSession) error
	MarkCheckoutOpen(ctx context.Context, checkoutID, processorSessionID, checkoutURL string) error
	MarkCheckoutFailed(ctx context.Context, checkoutID string) error
}

// Processor создаёт сессию у провайдера.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req paymentprovider.CreateCheckoutSessionRequest) (*paymentprovider.CheckoutSessionResponse, error)
}

// Result адрес для перенаправления пользователя и локальный идентификатор сессии.
type Result struct {
	CheckoutURL string `json:"checkout_url"`
	CheckoutID  string `json:"checkout_id"`
}

// Service создаёт сессии оплаты.
type Service struct {
	log       *slog.Logger
	repo      Repository
	processor Processor
	returnURL string
	catalog   map[string]struct{}
}

// New создаёт Service. Если в cfg.Products перечислены продукты, принимаются только они.
func New(log *slog.Logger, repo Repository, processor Processor, cfg config.Processor) *Service {
	var catalog map[string]struct{}
	if len(cfg.Products) > 0 {
		catalog = make(map[string]struct{}, len(cfg.Products))
		for _, p := range cfg.Products {
			catalog[p] = struct{}{}
		}
	}
	return &Service{
		log:       log,
		repo:      repo,
		processor: processor,
		returnURL: cfg.ReturnURL,
		catalog:   catalog,
	}
}

// ValidateProduct отсекает заведомо некорректные идентификаторы до обращения к провайдеру.
// Цену и существование продукта проверяет провайдер.
func (s *Service) ValidateProduct(productID string) error {
	if !productIDPattern.MatchString(productID) {
		return ErrInvalidProduct
	}
	if s.catalog != nil {
		if _, ok := s.catalog[productID]; !ok {
			return ErrInvalidProduct
		}
	}
	return nil
}

// CreateCheckout создаёт ровно одну сессию у провайдера на вызов, без повторов.
func (s *Service) CreateCheckout(ctx context.Context, user *models.User, productID string) (*Result, error) {
	const op = "checkout.CreateCheckout"

	if err := s.ValidateProduct(productID); err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("invalid_product").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checkoutID := uuid.NewString()
	if err := s.repo.CreateCheckoutSession(ctx, models.CheckoutSession{
		CheckoutID: checkoutID,
		UserUID:    user.UUID,
		ProductID:  productID,
		Status:     models.CheckoutPending,
	}); err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log := s.log.With(sl.Op(op), slog.String("checkout_id", checkoutID), slog.String("user_uid", user.UUID))

	resp, err := s.processor.CreateCheckoutSession(ctx, paymentprovider.CreateCheckoutSessionRequest{
		ProductCart: []paymentprovider.ProductCartItem{{ProductID: productID, Quantity: 1}},
		Customer:    paymentprovider.Customer{Email: user.Email, Name: customerName(user.Email)},
		Metadata: map[string]string{
			"user_id":     user.UUID,
			"checkout_id": checkoutID,
		},
		ReturnURL: withCheckoutID(s.returnURL, checkoutID),
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("processor_error").Inc()
		if markErr := s.repo.MarkCheckoutFailed(context.WithoutCancel(ctx), checkoutID); markErr != nil {
			log.Error("failed to mark checkout as failed", sl.Err(markErr))
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrProcessorUnavailable, err)
	}

	// сессия у провайдера уже создана, ошибку записи только логируем
	if err = s.repo.MarkCheckoutOpen(ctx, checkoutID, resp.SessionID, resp.CheckoutURL); err != nil {
		log.Error("failed to mark checkout as open", sl.Err(err))
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	log.Info("checkout session created", slog.String("product_id", productID))
	return &Result{CheckoutURL: resp.CheckoutURL, CheckoutID: checkoutID}, nil
}

// customerName имя покупателя по умолчанию: локальная часть email.
func customerName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

func withCheckoutID(rawURL, checkoutID string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("checkout_id", checkoutID)
	u.RawQuery = q.Encode()
	return u.String()
}
