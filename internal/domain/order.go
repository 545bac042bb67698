package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every status in workflow order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (s PaymentStatus) Valid() bool {
	for _, known := range PaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order is the record of a checkout
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	OrderNumber     string          `json:"order_number" db:"order_number"`
	Status          OrderStatus     `json:"status" db:"status"`
	Subtotal        decimal.Decimal `json:"subtotal" db:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	Total           decimal.Decimal `json:"total" db:"total"`
	ShippingMethod  string          `json:"shipping_method" db:"shipping_method"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	PostalCode      string          `json:"postal_code" db:"postal_code"`
	ShippingAddress string          `json:"shipping_address" db:"shipping_address"`
	BillingAddress  string          `json:"billing_address" db:"billing_address"`
	Notes           string          `json:"notes" db:"notes"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	// Joined columns, populated by listing and detail queries.
	UserName   string `json:"user_name,omitempty" db:"user_name"`
	UserEmail  string `json:"user_email,omitempty" db:"user_email"`
	UserPhone  string `json:"user_phone,omitempty" db:"user_phone"`
	ItemsCount int    `json:"items_count,omitempty" db:"items_count"`

	Items []*OrderItem `json:"items,omitempty" db:"-"`
}

type OrderItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	VariantID   uuid.NullUUID   `json:"variant_id" db:"variant_id"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	ProductName string          `json:"product_name" db:"product_name"`
	VariantName string          `json:"variant_name" db:"variant_name"`

	ProductSlug string `json:"product_slug,omitempty" db:"product_slug"`
}

func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DashboardStats summarizes the store for the admin dashboard.
type DashboardStats struct {
	TotalProducts int             `json:"total_products"`
	TotalUsers    int             `json:"total_users"`
	TotalOrders   int             `json:"total_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}
