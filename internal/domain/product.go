package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups products; a category with a ParentID is a subcategory.
type Category struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Slug        string        `json:"slug" db:"slug"`
	ParentID    uuid.NullUUID `json:"parent_id" db:"parent_id"`
	Description string        `json:"description" db:"description"`
	Image       string        `json:"image" db:"image"`
	Active      bool          `json:"active" db:"active"`
	SortOrder   int           `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`

	// Only populated by listing queries.
	ProductCount int `json:"product_count,omitempty" db:"product_count"`
}

// Product represents a product in the catalog
type Product struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Name            string              `json:"name" db:"name"`
	Slug            string              `json:"slug" db:"slug"`
	Description     string              `json:"description" db:"description"`
	Price           decimal.Decimal     `json:"price" db:"price"`
	ComparePrice    decimal.NullDecimal `json:"compare_price" db:"compare_price"`
	Cost            decimal.NullDecimal `json:"-" db:"cost"`
	SKU             string              `json:"sku" db:"sku"`
	Stock           int                 `json:"stock" db:"stock"`
	TrackInventory  bool                `json:"track_inventory" db:"track_inventory"`
	AllowBackorder  bool                `json:"allow_backorder" db:"allow_backorder"`
	Weight          decimal.NullDecimal `json:"weight" db:"weight"`
	Image           string              `json:"image" db:"image"`
	Active          bool                `json:"active" db:"active"`
	Featured        bool                `json:"featured" db:"featured"`
	MetaTitle       string              `json:"meta_title" db:"meta_title"`
	MetaDescription string              `json:"meta_description" db:"meta_description"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`

	// Comma separated category names, only populated by the admin listing.
	CategoryNames string `json:"category_names,omitempty" db:"category_names"`
}

// DiscountPercent returns the rounded markdown against the compare price, or 0
// when the product is not on sale.
func (p *Product) DiscountPercent() int {
	if !p.ComparePrice.Valid || !p.ComparePrice.Decimal.GreaterThan(p.Price) {
		return 0
	}
	compare := p.ComparePrice.Decimal
	return int(compare.Sub(p.Price).Div(compare).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

func (p *Product) InStock() bool {
	return p.Stock > 0
}

// ProductVariant is a purchasable option of a product (size, color, model).
type ProductVariant struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ProductID       uuid.UUID       `json:"product_id" db:"product_id"`
	Name            string          `json:"name" db:"name"`
	Value           string          `json:"value" db:"value"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment" db:"price_adjustment"`
	Stock           int             `json:"stock" db:"stock"`
	SKU             string          `json:"sku" db:"sku"`
	Active          bool            `json:"active" db:"active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Label renders the variant the way it is shown on cart lines and orders.
func (v *ProductVariant) Label() string {
	return v.Name + ": " + v.Value
}

// VariantGroup collects the variants sharing a name, in display order.
type VariantGroup struct {
	Name     string            `json:"name"`
	Variants []*ProductVariant `json:"variants"`
}

// GroupVariants groups variants by name preserving first-seen order.
func GroupVariants(variants []*ProductVariant) []VariantGroup {
	var groups []VariantGroup
	index := make(map[string]int)

	for _, v := range variants {
		i, ok := index[v.Name]
		if !ok {
			i = len(groups)
			index[v.Name] = i
			groups = append(groups, VariantGroup{Name: v.Name})
		}
		groups[i].Variants = append(groups[i].Variants, v)
	}

	return groups
}

type ProductImage struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Filename  string    `json:"filename" db:"filename"`
	AltText   string    `json:"alt_text" db:"alt_text"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
