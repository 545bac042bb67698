package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrVariantNotFound = errors.New("product variant not found")

type VariantRepository interface {
	Create(ctx context.Context, variant *domain.ProductVariant) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductVariant, error)
	ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error)
	DeleteByProduct(ctx context.Context, productID uuid.UUID) error
}

type variantRepository struct {
	db *sqlx.DB
}

func NewVariantRepository(db *sqlx.DB) VariantRepository {
	return &variantRepository{db: db}
}

const variantColumns = `id, product_id, name, value, price_adjustment, stock, sku, active, created_at`

func (r *variantRepository) Create(ctx context.Context, variant *domain.ProductVariant) error {
	query := r.db.Rebind(`INSERT INTO product_variants (` + variantColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		variant.ID,
		variant.ProductID,
		variant.Name,
		variant.Value,
		variant.PriceAdjustment,
		variant.Stock,
		variant.SKU,
		variant.Active,
		variant.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to create product variant: %w", err)
	}

	return nil
}

func (r *variantRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductVariant, error) {
	query := r.db.Rebind(`SELECT ` + variantColumns + ` FROM product_variants WHERE id = ?`)

	variant := &domain.ProductVariant{}
	if err := r.db.GetContext(ctx, variant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVariantNotFound
		}
		return nil, fmt.Errorf("failed to find product variant: %w", err)
	}

	return variant, nil
}

// ListActiveByProduct returns purchasable variants ordered by name then value.
func (r *variantRepository) ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error) {
	query := r.db.Rebind(`
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = ? AND active = ?
		ORDER BY name ASC, value ASC
	`)

	variants := []*domain.ProductVariant{}
	if err := r.db.SelectContext(ctx, &variants, query, productID, true); err != nil {
		return nil, fmt.Errorf("failed to list product variants: %w", err)
	}

	return variants, nil
}

func (r *variantRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductVariant, error) {
	query := r.db.Rebind(`
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = ?
		ORDER BY name ASC, value ASC
	`)

	variants := []*domain.ProductVariant{}
	if err := r.db.SelectContext(ctx, &variants, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list product variants: %w", err)
	}

	return variants, nil
}

func (r *variantRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM product_variants WHERE product_id = ?`), productID); err != nil {
		return fmt.Errorf("failed to delete product variants: %w", err)
	}
	return nil
}
