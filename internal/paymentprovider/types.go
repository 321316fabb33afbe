package paymentprovider

// ProductCartItem позиция корзины сессии оплаты.
type ProductCartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Customer данные покупателя, передаваемые провайдеру.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CreateCheckoutSessionRequest запрос на создание сессии оплаты.
// Metadata возвращается провайдером в каждом связанном webhook-событии.
type CreateCheckoutSessionRequest struct {
	ProductCart []ProductCartItem `json:"product_cart"`
	Customer    Customer          `json:"customer"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReturnURL   string            `json:"return_url,omitempty"`
}

// CheckoutSessionResponse ответ провайдера на создание сессии.
type CheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}
