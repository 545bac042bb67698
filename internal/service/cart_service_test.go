package service

import (
	"context"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartFixture struct {
	service  CartService
	products *mockProductRepository
	variants *mockVariantRepository
	sess     *session.Session
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	sess, err := session.New()
	require.NoError(t, err)

	products := newMockProductRepository()
	variants := newMockVariantRepository()
	return &cartFixture{
		service:  NewCartService(products, variants),
		products: products,
		variants: variants,
		sess:     sess,
	}
}

func TestCart_AddMergesSameLine(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	plush := f.products.add(newProduct("Pelúcia Totoro", "89.90", 10))

	count, err := f.service.AddItem(ctx, f.sess, plush.ID, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = f.service.AddItem(ctx, f.sess, plush.ID, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.Len(t, f.sess.Cart, 1)
	assert.Equal(t, 5, f.sess.Cart[0].Quantity)
	assert.True(t, f.sess.Dirty())
}

func TestCart_VariantsAreSeparateLines(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	shirt := f.products.add(newProduct("Camiseta Bebezitos", "59.90", 10))
	small := newVariant(shirt, "P", "0", 3)
	large := newVariant(shirt, "G", "5.00", 3)
	require.NoError(t, f.variants.Create(ctx, small))
	require.NoError(t, f.variants.Create(ctx, large))

	_, err := f.service.AddItem(ctx, f.sess, shirt.ID, &small.ID, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.sess, shirt.ID, &large.ID, 2)
	require.NoError(t, err)
	count, err := f.service.AddItem(ctx, f.sess, shirt.ID, nil, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, count)
	assert.Len(t, f.sess.Cart, 3)

	cart, err := f.service.View(ctx, f.sess)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 3)
	assert.Equal(t, "64.90", cart.Lines[1].UnitPrice.StringFixed(2))
	assert.Equal(t, "129.80", cart.Lines[1].Total.StringFixed(2))
	assert.Equal(t, "249.60", cart.Subtotal.StringFixed(2))
}

func TestCart_StockIsEnforced(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	keychain := f.products.add(newProduct("Chaveiro Kiki", "19.90", 3))
	variant := newVariant(keychain, "Único", "0", 1)
	require.NoError(t, f.variants.Create(ctx, variant))

	_, err := f.service.AddItem(ctx, f.sess, keychain.ID, nil, 4)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.service.AddItem(ctx, f.sess, keychain.ID, nil, 2)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.sess, keychain.ID, nil, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, f.sess.Cart[0].Quantity)

	_, err = f.service.AddItem(ctx, f.sess, keychain.ID, &variant.ID, 2)
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	_, err = f.service.UpdateItem(ctx, f.sess, keychain.ID, nil, 4)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestCart_RejectsUnknownOrInactive(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	plush := f.products.add(newProduct("Pelúcia Jiji", "79.90", 5))
	hidden := newProduct("Pelúcia Oculta", "79.90", 5)
	hidden.Active = false
	f.products.add(hidden)
	other := f.products.add(newProduct("Outra", "10.00", 5))
	foreign := newVariant(other, "M", "0", 5)
	require.NoError(t, f.variants.Create(ctx, foreign))

	_, err := f.service.AddItem(ctx, f.sess, uuid.New(), nil, 1)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	_, err = f.service.AddItem(ctx, f.sess, hidden.ID, nil, 1)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	_, err = f.service.AddItem(ctx, f.sess, plush.ID, &foreign.ID, 1)
	assert.ErrorIs(t, err, repository.ErrVariantNotFound)

	_, err = f.service.AddItem(ctx, f.sess, plush.ID, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, f.sess.Cart)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	a := f.products.add(newProduct("Ecobag", "39.90", 10))
	b := f.products.add(newProduct("Receita Bolo", "9.90", 10))

	_, err := f.service.UpdateItem(ctx, f.sess, a.ID, nil, 1)
	assert.ErrorIs(t, err, ErrCartEmpty)

	_, err = f.service.AddItem(ctx, f.sess, a.ID, nil, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.sess, b.ID, nil, 1)
	require.NoError(t, err)

	count, err := f.service.UpdateItem(ctx, f.sess, a.ID, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, err = f.service.RemoveItem(ctx, f.sess, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrCartItemNotFound)

	count, err = f.service.UpdateItem(ctx, f.sess, a.ID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.sess.Cart, 1)
	assert.Equal(t, b.ID, f.sess.Cart[0].ProductID)

	count, err = f.service.RemoveItem(ctx, f.sess, b.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.service.Clear(ctx, f.sess)
	assert.Empty(t, f.sess.Cart)
}

func TestCart_ViewPrunesDeadLinesAndPricesShipping(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	kept := f.products.add(newProduct("Pelúcia Calcifer", "100.00", 10))
	dropped := f.products.add(newProduct("Pelúcia Sumida", "50.00", 10))

	_, err := f.service.AddItem(ctx, f.sess, kept.ID, nil, 1)
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, f.sess, dropped.ID, nil, 1)
	require.NoError(t, err)
	dropped.Active = false

	cart, err := f.service.View(ctx, f.sess)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Len(t, f.sess.Cart, 1)
	assert.Equal(t, 1, cart.Count)

	require.NotNil(t, cart.SelectedShipping)
	assert.Equal(t, ShippingPAC, cart.SelectedShipping.Code)
	assert.Equal(t, "115.90", cart.Total.StringFixed(2))

	_, err = NewShippingService().Quote(f.sess, "90010-000")
	require.NoError(t, err)
	_, err = NewShippingService().Select(f.sess, ShippingSEDEX)
	require.NoError(t, err)

	cart, err = f.service.View(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, "90010000", cart.PostalCode)
	assert.Equal(t, ShippingSEDEX, cart.SelectedShipping.Code)
	assert.Equal(t, "135.90", cart.Total.StringFixed(2))
}

// Property: the cart count always equals the sum of line quantities
func TestProperty_CartCountMatchesLines(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("adding items keeps count consistent and within stock", prop.ForAll(
		func(quantities []int) bool {
			sess, err := session.New()
			if err != nil {
				return false
			}
			products := newMockProductRepository()
			svc := NewCartService(products, newMockVariantRepository())
			ctx := context.Background()

			items := []*domain.Product{
				products.add(newProduct("Produto A", "10.00", 20)),
				products.add(newProduct("Produto B", "20.00", 20)),
			}

			for i, q := range quantities {
				count, err := svc.AddItem(ctx, sess, items[i%2].ID, nil, q)
				if err != nil {
					continue
				}
				if count != CartCount(sess.Cart) {
					t.Logf("FAIL: returned count %d, lines sum %d", count, CartCount(sess.Cart))
					return false
				}
			}

			for _, item := range sess.Cart {
				if item.Quantity > 20 || item.Quantity < 1 {
					t.Logf("FAIL: line quantity %d outside stock", item.Quantity)
					return false
				}
			}
			return len(sess.Cart) <= 2
		},
		gen.SliceOf(gen.IntRange(-2, 12)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
