package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrImageNotFound = errors.New("product image not found")

type ImageRepository interface {
	Create(ctx context.Context, image *domain.ProductImage) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductImage, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type imageRepository struct {
	db *sqlx.DB
}

func NewImageRepository(db *sqlx.DB) ImageRepository {
	return &imageRepository{db: db}
}

// Create stores an image; a primary image demotes the product's previous one.
func (r *imageRepository) Create(ctx context.Context, image *domain.ProductImage) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertImage(ctx, tx, image)
	})
}

func insertImage(ctx context.Context, tx *sqlx.Tx, image *domain.ProductImage) error {
	if image.IsPrimary {
		demote := tx.Rebind(`UPDATE product_images SET is_primary = ? WHERE product_id = ?`)
		if _, err := tx.ExecContext(ctx, demote, false, image.ProductID); err != nil {
			return fmt.Errorf("failed to demote primary image: %w", err)
		}
	}

	query := tx.Rebind(`
		INSERT INTO product_images (id, product_id, filename, alt_text, sort_order, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := tx.ExecContext(ctx, query,
		image.ID, image.ProductID, image.Filename, image.AltText, image.SortOrder, image.IsPrimary, image.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to create product image: %w", err)
	}
	return nil
}

// ListByProduct orders images primary first, then by sort order.
func (r *imageRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductImage, error) {
	query := r.db.Rebind(`
		SELECT id, product_id, filename, alt_text, sort_order, is_primary, created_at
		FROM product_images
		WHERE product_id = ?
		ORDER BY is_primary DESC, sort_order ASC
	`)

	images := []*domain.ProductImage{}
	if err := r.db.SelectContext(ctx, &images, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}

	return images, nil
}

func (r *imageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM product_images WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete product image: %w", err)
	}
	return expectAffected(result, ErrImageNotFound)
}
