package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of the session cart. A nil VariantID means the product
// was added without choosing a variant.
type CartItem struct {
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId"`
	Quantity  int        `json:"quantity"`
	AddedAt   time.Time  `json:"addedAt"`
}

// Matches reports whether the line holds the given product/variant pair.
func (c *CartItem) Matches(productID uuid.UUID, variantID *uuid.UUID) bool {
	if c.ProductID != productID {
		return false
	}
	if c.VariantID == nil || variantID == nil {
		return c.VariantID == nil && variantID == nil
	}
	return *c.VariantID == *variantID
}

// CartLine is a cart item resolved against the catalog.
type CartLine struct {
	Item      CartItem        `json:"item"`
	Product   *Product        `json:"product"`
	Variant   *ProductVariant `json:"variant,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// Cart is the priced view of a session cart.
type Cart struct {
	Lines            []CartLine       `json:"lines"`
	Count            int              `json:"count"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	PostalCode       string           `json:"postal_code,omitempty"`
	ShippingOptions  []ShippingOption `json:"shipping_options,omitempty"`
	SelectedShipping *ShippingOption  `json:"selected_shipping,omitempty"`
	Total            decimal.Decimal  `json:"total"`
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// ShippingOption is a quoted delivery method.
type ShippingOption struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Days        string          `json:"days"`
	Description string          `json:"description,omitempty"`
}
