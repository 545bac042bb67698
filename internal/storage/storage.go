// Package storage saves uploaded product images on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"

	"storefront/internal/config"
)

// Disk stores objects by slash-separated key.
type Disk interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	Delete(ctx context.Context, path string) error
	// URL returns the public address of path.
	URL(path string) string
}

// New selects the driver named by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Disk, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalDisk(cfg.LocalRoot, cfg.PublicURL)
	case "s3":
		return NewS3Disk(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
