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

var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this slug already exists")
	ErrCategoryHasProducts   = errors.New("category has products attached")
)

// CategoryRepository defines the interface for category data access
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListWithCounts(ctx context.Context) ([]*domain.Category, error)
	ListActive(ctx context.Context) ([]*domain.Category, error)
	ForProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Category, error)
	Children(ctx context.Context, parentID uuid.UUID) ([]*domain.Category, error)
}

type categoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sqlx.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryColumns = `c.id, c.name, c.slug, c.parent_id, c.description, c.image, c.active, c.sort_order, c.created_at`

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	query := r.db.Rebind(`
		INSERT INTO categories (id, name, slug, parent_id, description, image, active, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		category.ID,
		category.Name,
		category.Slug,
		category.ParentID,
		category.Description,
		category.Image,
		category.Active,
		category.SortOrder,
		category.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	query := r.db.Rebind(`
		UPDATE categories
		SET name = ?, slug = ?, parent_id = ?, description = ?, image = ?, active = ?, sort_order = ?
		WHERE id = ?
	`)

	result, err := r.db.ExecContext(
		ctx,
		query,
		category.Name,
		category.Slug,
		category.ParentID,
		category.Description,
		category.Image,
		category.Active,
		category.SortOrder,
		category.ID,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to update category: %w", err)
	}

	return expectAffected(result, ErrCategoryNotFound)
}

// Delete removes a category unless products are still linked to it.
func (r *categoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var linked int
		countQuery := tx.Rebind(`SELECT COUNT(*) FROM product_categories WHERE category_id = ?`)
		if err := tx.GetContext(ctx, &linked, countQuery, id); err != nil {
			return fmt.Errorf("failed to count category products: %w", err)
		}

		if linked > 0 {
			return ErrCategoryHasProducts
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM categories WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}

		return expectAffected(result, ErrCategoryNotFound)
	})
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return r.findOne(ctx, `c.id = ?`, id)
}

func (r *categoryRepository) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	return r.findOne(ctx, `c.slug = ?`, slug)
}

func (r *categoryRepository) findOne(ctx context.Context, where string, arg interface{}) (*domain.Category, error) {
	query := r.db.Rebind(`SELECT ` + categoryColumns + ` FROM categories c WHERE ` + where)

	category := &domain.Category{}
	if err := r.db.GetContext(ctx, category, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}

	return category, nil
}

// ListWithCounts returns every category with the number of linked products,
// ordered by name.
func (r *categoryRepository) ListWithCounts(ctx context.Context) ([]*domain.Category, error) {
	query := `
		SELECT ` + categoryColumns + `, COUNT(pc.product_id) AS product_count
		FROM categories c
		LEFT JOIN product_categories pc ON pc.category_id = c.id
		GROUP BY ` + categoryColumns + `
		ORDER BY c.name ASC
	`

	categories := []*domain.Category{}
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	return categories, nil
}

// ListActive returns the storefront menu: active categories with the number
// of active products in each.
func (r *categoryRepository) ListActive(ctx context.Context) ([]*domain.Category, error) {
	query := r.db.Rebind(`
		SELECT ` + categoryColumns + `, COUNT(p.id) AS product_count
		FROM categories c
		LEFT JOIN product_categories pc ON pc.category_id = c.id
		LEFT JOIN products p ON p.id = pc.product_id AND p.active = ?
		WHERE c.active = ?
		GROUP BY ` + categoryColumns + `
		ORDER BY c.sort_order ASC, c.name ASC
	`)

	categories := []*domain.Category{}
	if err := r.db.SelectContext(ctx, &categories, query, true, true); err != nil {
		return nil, fmt.Errorf("failed to list active categories: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) ForProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Category, error) {
	query := r.db.Rebind(`
		SELECT ` + categoryColumns + `
		FROM categories c
		INNER JOIN product_categories pc ON pc.category_id = c.id
		WHERE pc.product_id = ?
		ORDER BY c.name ASC
	`)

	categories := []*domain.Category{}
	if err := r.db.SelectContext(ctx, &categories, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list product categories: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) Children(ctx context.Context, parentID uuid.UUID) ([]*domain.Category, error) {
	query := r.db.Rebind(`
		SELECT ` + categoryColumns + `
		FROM categories c
		WHERE c.parent_id = ?
		ORDER BY c.sort_order ASC, c.name ASC
	`)

	categories := []*domain.Category{}
	if err := r.db.SelectContext(ctx, &categories, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to list child categories: %w", err)
	}

	return categories, nil
}
