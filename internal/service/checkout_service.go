package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/google/uuid"
)

// CheckoutInput is the checkout form.
type CheckoutInput struct {
	PostalCode      string `form:"postalCode" json:"postal_code" validate:"required" msg:"Informe o CEP de entrega"`
	ShippingCode    string `form:"shipping" json:"shipping" validate:"required" msg:"Escolha uma opção de frete"`
	ShippingAddress string `form:"shippingAddress" json:"shipping_address" validate:"required,min=10,max=500" msg:"Informe o endereço completo de entrega"`
	BillingAddress  string `form:"billingAddress" json:"billing_address" validate:"max=500" msg:"Endereço de cobrança muito longo"`
	PaymentMethod   string `form:"paymentMethod" json:"payment_method" validate:"required,oneof=pix boleto credit_card" msg:"Escolha uma forma de pagamento"`
	Notes           string `form:"notes" json:"notes" validate:"max=500" msg:"Observações devem ter no máximo 500 caracteres"`
}

// CheckoutService turns the session cart into an order
type CheckoutService interface {
	PlaceOrder(ctx context.Context, sess *session.Session, userID uuid.UUID, input CheckoutInput) (*domain.Order, error)
	OrderForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
}

type checkoutService struct {
	cart   CartService
	orders repository.OrderRepository
	now    func() time.Time
}

func NewCheckoutService(cart CartService, orders repository.OrderRepository) CheckoutService {
	return &checkoutService{
		cart:   cart,
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewOrderNumber formats PL<yyyymmdd><6 hex digits>.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	return "PL" + now.Format("20060102") + strings.ToUpper(hex.EncodeToString(id[:3]))
}

func (s *checkoutService) PlaceOrder(ctx context.Context, sess *session.Session, userID uuid.UUID, input CheckoutInput) (*domain.Order, error) {
	if len(sess.Cart) == 0 {
		return nil, ErrCartEmpty
	}

	input.ShippingAddress = strings.TrimSpace(input.ShippingAddress)
	input.BillingAddress = strings.TrimSpace(input.BillingAddress)
	input.Notes = strings.TrimSpace(input.Notes)
	if err := validateForm(input); err != nil {
		return nil, err
	}

	cep, err := NormalizePostalCode(input.PostalCode)
	if err != nil {
		return nil, fieldError("postalCode", "CEP inválido. Digite um CEP válido com 8 dígitos.")
	}

	cart, err := s.cart.View(ctx, sess)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, ErrCartEmpty
	}

	options, err := QuoteShipping(cep)
	if err != nil {
		return nil, err
	}
	shipping, ok := findOption(options, input.ShippingCode)
	if !ok {
		return nil, ErrShippingUnavailable
	}

	for _, line := range cart.Lines {
		available := line.Product.Stock
		if line.Variant != nil {
			available = line.Variant.Stock
		}
		if line.Item.Quantity > available {
			return nil, &InsufficientStockError{Available: available}
		}
	}

	if input.BillingAddress == "" {
		input.BillingAddress = input.ShippingAddress
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		OrderNumber:     NewOrderNumber(now),
		Status:          domain.OrderStatusPending,
		Subtotal:        cart.Subtotal,
		ShippingCost:    shipping.Price,
		Total:           cart.Subtotal.Add(shipping.Price),
		ShippingMethod:  shipping.Code,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		PostalCode:      cep,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items := make([]*domain.OrderItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		item := &domain.OrderItem{
			ID:          uuid.New(),
			ProductID:   line.Product.ID,
			Quantity:    line.Item.Quantity,
			Price:       line.UnitPrice,
			ProductName: line.Product.Name,
			ProductSlug: line.Product.Slug,
		}
		if line.Variant != nil {
			item.VariantID = uuid.NullUUID{UUID: line.Variant.ID, Valid: true}
			item.VariantName = line.Variant.Label()
		}
		items = append(items, item)
	}

	if err := s.orders.CreateWithItems(ctx, order, items); err != nil {
		if errors.Is(err, repository.ErrStockConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	s.cart.Clear(ctx, sess)
	sess.SetShipping(cep, nil)

	order.Items = items
	return order, nil
}

// OrderForUser loads an order with its items, refusing orders of other users.
func (s *checkoutService) OrderForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderForbidden
	}

	items, err := s.orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}
