package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrStockConflict = errors.New("not enough stock to fulfil the order")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Items(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	AdminList(ctx context.Context, status string, page Page) ([]*domain.Order, int, error)
	// UpdateStatus writes both statuses in one statement; empty values are skipped.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus) error
	CountAll(ctx context.Context) (int, error)
	PaidRevenue(ctx context.Context) (decimal.Decimal, error)
	Recent(ctx context.Context, limit int) ([]*domain.Order, error)
}

type orderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `o.id, o.user_id, o.order_number, o.status, o.subtotal, o.shipping_cost, o.total,
	o.shipping_method, o.payment_method, o.payment_status, o.postal_code, o.shipping_address,
	o.billing_address, o.notes, o.created_at, o.updated_at`

const orderListColumns = orderColumns + `,
	COALESCE(u.name, '') AS user_name, COALESCE(u.email, '') AS user_email,
	(SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS items_count`

// CreateWithItems stores the order and its items and takes the purchased
// quantities out of stock. Any line whose stock ran out in the meantime
// aborts the whole order with ErrStockConflict.
func (r *orderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		orderQuery := tx.Rebind(`
			INSERT INTO orders (id, user_id, order_number, status, subtotal, shipping_cost, total,
				shipping_method, payment_method, payment_status, postal_code, shipping_address,
				billing_address, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)

		_, err := tx.ExecContext(
			ctx,
			orderQuery,
			order.ID,
			order.UserID,
			order.OrderNumber,
			order.Status,
			order.Subtotal,
			order.ShippingCost,
			order.Total,
			order.ShippingMethod,
			order.PaymentMethod,
			order.PaymentStatus,
			order.PostalCode,
			order.ShippingAddress,
			order.BillingAddress,
			order.Notes,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		itemQuery := tx.Rebind(`
			INSERT INTO order_items (id, order_id, product_id, variant_id, quantity, price, product_name, variant_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		variantStock := tx.Rebind(`UPDATE product_variants SET stock = stock - ? WHERE id = ? AND stock >= ?`)
		productStock := tx.Rebind(`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`)

		for _, item := range items {
			item.OrderID = order.ID

			if _, err := tx.ExecContext(ctx, itemQuery,
				item.ID, item.OrderID, item.ProductID, item.VariantID,
				item.Quantity, item.Price, item.ProductName, item.VariantName,
			); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}

			var result sql.Result
			if item.VariantID.Valid {
				result, err = tx.ExecContext(ctx, variantStock, item.Quantity, item.VariantID.UUID, item.Quantity)
			} else {
				result, err = tx.ExecContext(ctx, productStock, item.Quantity, order.CreatedAt, item.ProductID, item.Quantity)
			}
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}

			if err := expectAffected(result, ErrStockConflict); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := r.db.Rebind(`
		SELECT ` + orderListColumns + `, COALESCE(u.phone, '') AS user_phone
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = ?
	`)

	order := &domain.Order{}
	if err := r.db.GetContext(ctx, order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Items(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	query := r.db.Rebind(`
		SELECT oi.id, oi.order_id, oi.product_id, oi.variant_id, oi.quantity, oi.price,
			oi.product_name, oi.variant_name, COALESCE(p.slug, '') AS product_slug
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ?
		ORDER BY oi.product_name ASC
	`)

	items := []*domain.OrderItem{}
	if err := r.db.SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}

	return items, nil
}

// ListByUser returns a customer's orders, newest first.
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := r.db.Rebind(`
		SELECT ` + orderListColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.user_id = ?
		ORDER BY o.created_at DESC
	`)

	orders := []*domain.Order{}
	if err := r.db.SelectContext(ctx, &orders, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}

	return orders, nil
}

// AdminList pages through orders; an empty status or "all" disables the filter.
func (r *orderRepository) AdminList(ctx context.Context, status string, page Page) ([]*domain.Order, int, error) {
	page = page.normalize(AdminPageSize)

	whereClause := ""
	args := []interface{}{}
	if status != "" && status != "all" {
		whereClause = "WHERE o.status = ?"
		args = append(args, status)
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM orders o ` + whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := r.db.Rebind(`
		SELECT ` + orderListColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		` + whereClause + `
		ORDER BY o.created_at DESC
		LIMIT ? OFFSET ?
	`)
	args = append(args, page.Size, page.Offset())

	orders := []*domain.Order{}
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, payment domain.PaymentStatus) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if status != "" {
		sets = append(sets, "status = ?")
		args = append(args, status)
	}
	if payment != "" {
		sets = append(sets, "payment_status = ?")
		args = append(args, payment)
	}
	args = append(args, id)

	query := r.db.Rebind(`UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return expectAffected(result, ErrOrderNotFound)
}

func (r *orderRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM orders`); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// PaidRevenue sums the totals of paid orders.
func (r *orderRepository) PaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	var revenue decimal.Decimal
	query := r.db.Rebind(`SELECT COALESCE(SUM(total), 0) FROM orders WHERE payment_status = ?`)
	if err := r.db.GetContext(ctx, &revenue, query, domain.PaymentStatusPaid); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return revenue.Round(2), nil
}

func (r *orderRepository) Recent(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := r.db.Rebind(`
		SELECT ` + orderListColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC
		LIMIT ?
	`)

	orders := []*domain.Order{}
	if err := r.db.SelectContext(ctx, &orders, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}

	return orders, nil
}
