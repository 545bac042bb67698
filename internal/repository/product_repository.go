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
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductSlugTaken     = errors.New("product with this slug already exists")
	ErrUnknownCategoryLinks = errors.New("product references an unknown category")
)

// ProductSort names the storefront sort options.
type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortNameAsc   ProductSort = "name_asc"
	SortFeatured  ProductSort = "featured"
)

// Whitelisted ORDER BY clauses; user input never reaches the query text.
var productSortClauses = map[ProductSort]string{
	SortNewest:    "p.created_at DESC",
	SortPriceAsc:  "p.price ASC",
	SortPriceDesc: "p.price DESC",
	SortNameAsc:   "p.name ASC",
	SortFeatured:  "p.featured DESC, p.created_at DESC",
}

// ParseProductSort falls back to newest for unknown values.
func ParseProductSort(raw string) ProductSort {
	s := ProductSort(raw)
	if _, ok := productSortClauses[s]; ok {
		return s
	}
	return SortNewest
}

// ProductFilter narrows the catalog listing.
type ProductFilter struct {
	CategorySlug string
	ActiveOnly   bool
	Sort         ProductSort
	Page         Page
}

const (
	StorefrontPageSize = 12
	AdminPageSize      = 20
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error
	CreateWithImage(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID, image *domain.ProductImage) error
	Update(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	SetImage(ctx context.Context, id uuid.UUID, image string) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindActiveBySlug(ctx context.Context, slug string) (*domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error)
	Search(ctx context.Context, term string) ([]*domain.Product, error)
	Featured(ctx context.Context, limit int) ([]*domain.Product, error)
	Newest(ctx context.Context, limit int) ([]*domain.Product, error)
	BestSellers(ctx context.Context, limit int) ([]*domain.Product, error)
	ByCategorySlug(ctx context.Context, slug string, limit int) ([]*domain.Product, error)
	Related(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.Product, error)
	AdminList(ctx context.Context, page Page) ([]*domain.Product, int, error)
	LowStock(ctx context.Context, threshold, limit int) ([]*domain.Product, error)
	CountActive(ctx context.Context) (int, error)
	CategoryIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
}

type productRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sqlx.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `p.id, p.name, p.slug, p.description, p.price, p.compare_price, p.cost, p.sku,
	p.stock, p.track_inventory, p.allow_backorder, p.weight, p.image, p.active, p.featured,
	p.meta_title, p.meta_description, p.created_at, p.updated_at`

// Create inserts a product and links it to its categories in one transaction
func (r *productRepository) Create(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error {
	return r.CreateWithImage(ctx, product, categoryIDs, nil)
}

// CreateWithImage also stores the optional image row inside the same transaction.
func (r *productRepository) CreateWithImage(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID, image *domain.ProductImage) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO products (id, name, slug, description, price, compare_price, cost, sku, stock,
				track_inventory, allow_backorder, weight, image, active, featured, meta_title,
				meta_description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)

		_, err := tx.ExecContext(
			ctx,
			query,
			product.ID,
			product.Name,
			product.Slug,
			product.Description,
			product.Price,
			product.ComparePrice,
			product.Cost,
			product.SKU,
			product.Stock,
			product.TrackInventory,
			product.AllowBackorder,
			product.Weight,
			product.Image,
			product.Active,
			product.Featured,
			product.MetaTitle,
			product.MetaDescription,
			product.CreatedAt,
			product.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrProductSlugTaken
			}
			return fmt.Errorf("failed to create product: %w", err)
		}

		if err := linkCategories(ctx, tx, product.ID, categoryIDs); err != nil {
			return err
		}
		if image == nil {
			return nil
		}
		return insertImage(ctx, tx, image)
	})
}

// Update rewrites a product and replaces its category links
func (r *productRepository) Update(ctx context.Context, product *domain.Product, categoryIDs []uuid.UUID) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			UPDATE products
			SET name = ?, slug = ?, description = ?, price = ?, compare_price = ?, cost = ?, sku = ?,
				stock = ?, track_inventory = ?, allow_backorder = ?, weight = ?, image = ?, active = ?,
				featured = ?, meta_title = ?, meta_description = ?, updated_at = ?
			WHERE id = ?
		`)

		result, err := tx.ExecContext(
			ctx,
			query,
			product.Name,
			product.Slug,
			product.Description,
			product.Price,
			product.ComparePrice,
			product.Cost,
			product.SKU,
			product.Stock,
			product.TrackInventory,
			product.AllowBackorder,
			product.Weight,
			product.Image,
			product.Active,
			product.Featured,
			product.MetaTitle,
			product.MetaDescription,
			product.UpdatedAt,
			product.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrProductSlugTaken
			}
			return fmt.Errorf("failed to update product: %w", err)
		}

		if err := expectAffected(result, ErrProductNotFound); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM product_categories WHERE product_id = ?`), product.ID); err != nil {
			return fmt.Errorf("failed to clear product categories: %w", err)
		}

		return linkCategories(ctx, tx, product.ID, categoryIDs)
	})
}

func linkCategories(ctx context.Context, tx *sqlx.Tx, productID uuid.UUID, categoryIDs []uuid.UUID) error {
	query := tx.Rebind(`INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)`)

	seen := make(map[uuid.UUID]bool, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		if seen[categoryID] {
			continue
		}
		seen[categoryID] = true

		if _, err := tx.ExecContext(ctx, query, productID, categoryID); err != nil {
			if isForeignKeyViolation(err) {
				return ErrUnknownCategoryLinks
			}
			return fmt.Errorf("failed to link product category: %w", err)
		}
	}

	return nil
}

// SoftDelete hides a product; order history keeps referencing it.
func (r *productRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := r.db.Rebind(`UPDATE products SET active = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, false, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}

	return expectAffected(result, ErrProductNotFound)
}

func (r *productRepository) SetImage(ctx context.Context, id uuid.UUID, image string) error {
	query := r.db.Rebind(`UPDATE products SET image = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, image, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set product image: %w", err)
	}

	return expectAffected(result, ErrProductNotFound)
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products p WHERE p.id = ?`)
	return r.getOne(ctx, query, id)
}

// FindActiveBySlug only returns products visible on the storefront.
func (r *productRepository) FindActiveBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products p WHERE p.slug = ? AND p.active = ?`)
	return r.getOne(ctx, query, slug, true)
}

func (r *productRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Product, error) {
	product := &domain.Product{}
	if err := r.db.GetContext(ctx, product, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return product, nil
}

// List retrieves products with optional category filtering, pagination, and sorting.
// A category filter also matches products filed under its direct subcategories.
func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error) {
	page := filter.Page.normalize(StorefrontPageSize)

	orderBy, ok := productSortClauses[filter.Sort]
	if !ok {
		orderBy = productSortClauses[SortNewest]
	}

	conditions := []string{}
	args := []interface{}{}

	if filter.ActiveOnly {
		conditions = append(conditions, "p.active = ?")
		args = append(args, true)
	}

	if filter.CategorySlug != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM product_categories pc
			INNER JOIN categories c ON c.id = pc.category_id
			LEFT JOIN categories parent ON parent.id = c.parent_id
			WHERE pc.product_id = p.id AND (c.slug = ? OR parent.slug = ?)
		)`)
		args = append(args, filter.CategorySlug, filter.CategorySlug)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := r.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM products p %s", whereClause))
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM products p
		%s
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, productColumns, whereClause, orderBy))

	args = append(args, page.Size, page.Offset())

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	return products, total, nil
}

// MinSearchLength is the shortest term that triggers a search.
const MinSearchLength = 2

// Search matches active products by name, description or slug, ordered by name.
func (r *productRepository) Search(ctx context.Context, term string) ([]*domain.Product, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < MinSearchLength {
		return []*domain.Product{}, nil
	}

	pattern := "%" + strings.ToLower(term) + "%"
	query := r.db.Rebind(`
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.active = ?
		  AND (LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ? OR LOWER(p.slug) LIKE ?)
		ORDER BY p.name ASC
	`)

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, true, pattern, pattern, pattern); err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	return products, nil
}

func (r *productRepository) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	return r.storefrontSection(ctx, "p.featured = ?", []interface{}{true}, "p.created_at DESC", limit)
}

func (r *productRepository) Newest(ctx context.Context, limit int) ([]*domain.Product, error) {
	return r.storefrontSection(ctx, "", nil, "p.created_at DESC", limit)
}

// BestSellers approximates sales by lowest remaining stock.
func (r *productRepository) BestSellers(ctx context.Context, limit int) ([]*domain.Product, error) {
	return r.storefrontSection(ctx, "", nil, "p.stock ASC, p.created_at DESC", limit)
}

func (r *productRepository) ByCategorySlug(ctx context.Context, slug string, limit int) ([]*domain.Product, error) {
	cond := `EXISTS (
		SELECT 1 FROM product_categories pc
		INNER JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = p.id AND c.slug = ?
	)`
	return r.storefrontSection(ctx, cond, []interface{}{slug}, "p.created_at DESC", limit)
}

// storefrontSection lists active, in-stock products for home page sections.
func (r *productRepository) storefrontSection(ctx context.Context, cond string, condArgs []interface{}, orderBy string, limit int) ([]*domain.Product, error) {
	where := "p.active = ? AND p.stock > 0"
	args := []interface{}{true}
	if cond != "" {
		where += " AND " + cond
		args = append(args, condArgs...)
	}
	args = append(args, limit)

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM products p
		WHERE %s
		ORDER BY %s
		LIMIT ?
	`, productColumns, where, orderBy))

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list storefront products: %w", err)
	}

	return products, nil
}

// Related returns active products sharing a category with the given product.
func (r *productRepository) Related(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.Product, error) {
	query := r.db.Rebind(`
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.active = ? AND p.id <> ?
		  AND EXISTS (
			SELECT 1 FROM product_categories pc
			WHERE pc.product_id = p.id
			  AND pc.category_id IN (SELECT category_id FROM product_categories WHERE product_id = ?)
		  )
		ORDER BY p.featured DESC, p.created_at DESC
		LIMIT ?
	`)

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, true, productID, productID, limit); err != nil {
		return nil, fmt.Errorf("failed to list related products: %w", err)
	}

	return products, nil
}

// AdminList pages through every product, active or not, with category names.
func (r *productRepository) AdminList(ctx context.Context, page Page) ([]*domain.Product, int, error) {
	page = page.normalize(AdminPageSize)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products`); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := r.db.Rebind(`
		SELECT ` + productColumns + `
		FROM products p
		ORDER BY p.created_at DESC
		LIMIT ? OFFSET ?
	`)

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, page.Size, page.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	if err := r.attachCategoryNames(ctx, products); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *productRepository) attachCategoryNames(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(products))
	byID := make(map[uuid.UUID]*domain.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	query, args, err := sqlx.In(`
		SELECT pc.product_id, c.name
		FROM product_categories pc
		INNER JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id IN (?)
		ORDER BY c.name ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build category names query: %w", err)
	}

	var rows []struct {
		ProductID uuid.UUID `db:"product_id"`
		Name      string    `db:"name"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load category names: %w", err)
	}

	names := make(map[uuid.UUID][]string)
	for _, row := range rows {
		names[row.ProductID] = append(names[row.ProductID], row.Name)
	}
	for id, list := range names {
		byID[id].CategoryNames = strings.Join(list, ", ")
	}

	return nil
}

// LowStock lists active products at or below the threshold, scarcest first.
func (r *productRepository) LowStock(ctx context.Context, threshold, limit int) ([]*domain.Product, error) {
	query := r.db.Rebind(`
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.active = ? AND p.stock <= ?
		ORDER BY p.stock ASC
		LIMIT ?
	`)

	products := []*domain.Product{}
	if err := r.db.SelectContext(ctx, &products, query, true, threshold, limit); err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}

	return products, nil
}

func (r *productRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM products WHERE active = ?`), true); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func (r *productRepository) CategoryIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	query := r.db.Rebind(`SELECT category_id FROM product_categories WHERE product_id = ?`)
	if err := r.db.SelectContext(ctx, &ids, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list product category ids: %w", err)
	}
	return ids, nil
}
