package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartService manipulates the session cart. Quantities are always checked
// against the stock of the chosen variant, or of the product when no variant
// was chosen.
type CartService interface {
	AddItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID, quantity int) (int, error)
	UpdateItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID, quantity int) (int, error)
	RemoveItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID) (int, error)
	Clear(ctx context.Context, sess *session.Session)
	View(ctx context.Context, sess *session.Session) (*domain.Cart, error)
}

type cartService struct {
	products repository.ProductRepository
	variants repository.VariantRepository
	now      func() time.Time
}

func NewCartService(products repository.ProductRepository, variants repository.VariantRepository) CartService {
	return &cartService{
		products: products,
		variants: variants,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CartCount sums the quantities of every line.
func CartCount(items []domain.CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func findLine(items []domain.CartItem, productID uuid.UUID, variantID *uuid.UUID) int {
	for i := range items {
		if items[i].Matches(productID, variantID) {
			return i
		}
	}
	return -1
}

// resolve loads the purchasable product and variant and returns the stock
// that limits the line.
func (s *cartService) resolve(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*domain.Product, *domain.ProductVariant, int, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, nil, 0, repository.ErrProductNotFound
		}
		return nil, nil, 0, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.Active {
		return nil, nil, 0, repository.ErrProductNotFound
	}

	if variantID == nil {
		return product, nil, product.Stock, nil
	}

	variant, err := s.variants.FindByID(ctx, *variantID)
	if err != nil {
		if errors.Is(err, repository.ErrVariantNotFound) {
			return nil, nil, 0, repository.ErrVariantNotFound
		}
		return nil, nil, 0, fmt.Errorf("failed to load variant: %w", err)
	}
	if variant.ProductID != product.ID || !variant.Active {
		return nil, nil, 0, repository.ErrVariantNotFound
	}

	return product, variant, variant.Stock, nil
}

func (s *cartService) AddItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}

	_, _, available, err := s.resolve(ctx, productID, variantID)
	if err != nil {
		return 0, err
	}

	if quantity > available {
		return 0, &InsufficientStockError{Available: available}
	}

	items := append([]domain.CartItem(nil), sess.Cart...)
	if i := findLine(items, productID, variantID); i >= 0 {
		merged := items[i].Quantity + quantity
		if merged > available {
			return 0, &InsufficientStockError{Available: available}
		}
		items[i].Quantity = merged
	} else {
		items = append(items, domain.CartItem{
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			AddedAt:   s.now(),
		})
	}

	sess.SetCart(items)
	return CartCount(items), nil
}

// UpdateItem sets the quantity of an existing line; zero or less removes it.
func (s *cartService) UpdateItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID, quantity int) (int, error) {
	if len(sess.Cart) == 0 {
		return 0, ErrCartEmpty
	}

	i := findLine(sess.Cart, productID, variantID)
	if i < 0 {
		return 0, ErrCartItemNotFound
	}

	if quantity <= 0 {
		return s.RemoveItem(ctx, sess, productID, variantID)
	}

	_, _, available, err := s.resolve(ctx, productID, variantID)
	if err != nil {
		return 0, err
	}
	if quantity > available {
		return 0, &InsufficientStockError{Available: available}
	}

	items := append([]domain.CartItem(nil), sess.Cart...)
	items[i].Quantity = quantity
	sess.SetCart(items)
	return CartCount(items), nil
}

func (s *cartService) RemoveItem(ctx context.Context, sess *session.Session, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	if len(sess.Cart) == 0 {
		return 0, ErrCartEmpty
	}

	i := findLine(sess.Cart, productID, variantID)
	if i < 0 {
		return 0, ErrCartItemNotFound
	}

	items := make([]domain.CartItem, 0, len(sess.Cart)-1)
	items = append(items, sess.Cart[:i]...)
	items = append(items, sess.Cart[i+1:]...)
	sess.SetCart(items)
	return CartCount(items), nil
}

func (s *cartService) Clear(ctx context.Context, sess *session.Session) {
	sess.SetCart([]domain.CartItem{})
}

// View prices the cart. Lines whose product or variant is gone or inactive
// are dropped from the session as well.
func (s *cartService) View(ctx context.Context, sess *session.Session) (*domain.Cart, error) {
	cart := &domain.Cart{
		Lines:      []domain.CartLine{},
		Subtotal:   decimal.Zero,
		PostalCode: sess.PostalCode,
	}

	kept := make([]domain.CartItem, 0, len(sess.Cart))
	for _, item := range sess.Cart {
		product, variant, _, err := s.resolve(ctx, item.ProductID, item.VariantID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrVariantNotFound) {
				continue
			}
			return nil, err
		}

		unit := product.Price
		if variant != nil {
			unit = unit.Add(variant.PriceAdjustment)
		}
		total := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))

		cart.Lines = append(cart.Lines, domain.CartLine{
			Item:      item,
			Product:   product,
			Variant:   variant,
			UnitPrice: unit,
			Total:     total,
		})
		cart.Subtotal = cart.Subtotal.Add(total)
		cart.Count += item.Quantity
		kept = append(kept, item)
	}

	if len(kept) != len(sess.Cart) {
		sess.SetCart(kept)
	}

	cart.ShippingOptions = DefaultShippingOptions()
	if sess.PostalCode != "" {
		if quoted, err := QuoteShipping(sess.PostalCode); err == nil {
			cart.ShippingOptions = quoted
		}
	}

	first := cart.ShippingOptions[0]
	cart.SelectedShipping = &first
	if sess.Shipping != nil {
		if opt, ok := findOption(cart.ShippingOptions, sess.Shipping.Code); ok {
			cart.SelectedShipping = opt
		}
	}

	cart.Total = cart.Subtotal.Add(cart.SelectedShipping.Price)
	return cart, nil
}
