package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	PlaceholderImage = "/static/images/placeholder.svg"

	homeFeaturedLimit    = 12
	homeNewestLimit      = 8
	homeBestSellersLimit = 8
	homeSectionLimit     = 6
	relatedLimit         = 4
)

// CatalogConfig carries the store settings the catalog pages need.
type CatalogConfig struct {
	StoreName    string
	Currency     string
	BaseURL      string
	HomeSections []string
}

// HomeSection is a category block on the home page.
type HomeSection struct {
	Category *domain.Category
	Products []*domain.Product
}

type HomePage struct {
	Featured    []*domain.Product
	Newest      []*domain.Product
	BestSellers []*domain.Product
	Sections    []HomeSection
}

type ListInput struct {
	Category string
	Sort     string
	Page     int
}

type ProductListing struct {
	Products        []*domain.Product
	Total           int
	Page            int
	TotalPages      int
	Sort            repository.ProductSort
	Categories      []*domain.Category
	CurrentCategory *domain.Category
	// CategoryFound is false when a category slug was requested but does not exist.
	CategoryFound bool
}

type ProductPage struct {
	Product        *domain.Product
	Images         []*domain.ProductImage
	Variants       []*domain.ProductVariant
	VariantGroups  []domain.VariantGroup
	Categories     []*domain.Category
	Related        []*domain.Product
	StructuredData string
}

type SearchResult struct {
	Query    string
	Products []*domain.Product
}

// CatalogService serves the public catalog pages
type CatalogService interface {
	Home(ctx context.Context) (*HomePage, error)
	ListProducts(ctx context.Context, input ListInput) (*ProductListing, error)
	ProductDetail(ctx context.Context, slug string) (*ProductPage, error)
	Variants(ctx context.Context, slug string) ([]*domain.ProductVariant, error)
	Search(ctx context.Context, query string) (*SearchResult, error)
	Categories(ctx context.Context) ([]*domain.Category, error)
}

type catalogService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	variants   repository.VariantRepository
	images     repository.ImageRepository
	cfg        CatalogConfig
}

func NewCatalogService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	variants repository.VariantRepository,
	images repository.ImageRepository,
	cfg CatalogConfig,
) CatalogService {
	return &catalogService{
		products:   products,
		categories: categories,
		variants:   variants,
		images:     images,
		cfg:        cfg,
	}
}

// Home loads the home page sections concurrently.
func (s *catalogService) Home(ctx context.Context) (*HomePage, error) {
	page := &HomePage{}
	sections := make([]HomeSection, len(s.cfg.HomeSections))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		page.Featured, err = s.products.Featured(gctx, homeFeaturedLimit)
		return err
	})
	g.Go(func() (err error) {
		page.Newest, err = s.products.Newest(gctx, homeNewestLimit)
		return err
	})
	g.Go(func() (err error) {
		page.BestSellers, err = s.products.BestSellers(gctx, homeBestSellersLimit)
		return err
	})
	for i, slug := range s.cfg.HomeSections {
		g.Go(func() error {
			category, err := s.categories.FindBySlug(gctx, slug)
			if err != nil {
				if errors.Is(err, repository.ErrCategoryNotFound) {
					return nil
				}
				return err
			}
			products, err := s.products.ByCategorySlug(gctx, slug, homeSectionLimit)
			if err != nil {
				return err
			}
			sections[i] = HomeSection{Category: category, Products: products}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load home page: %w", err)
	}

	for _, section := range sections {
		if section.Category != nil {
			page.Sections = append(page.Sections, section)
		}
	}
	return page, nil
}

func (s *catalogService) ListProducts(ctx context.Context, input ListInput) (*ProductListing, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	sort := repository.ParseProductSort(input.Sort)

	products, total, err := s.products.List(ctx, repository.ProductFilter{
		CategorySlug: input.Category,
		ActiveOnly:   true,
		Sort:         sort,
		Page:         repository.Page{Number: input.Page, Size: repository.StorefrontPageSize},
	})
	if err != nil {
		return nil, err
	}

	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	listing := &ProductListing{
		Products:      products,
		Total:         total,
		Page:          input.Page,
		TotalPages:    repository.TotalPages(total, repository.StorefrontPageSize),
		Sort:          sort,
		Categories:    categories,
		CategoryFound: true,
	}

	if input.Category != "" {
		category, err := s.categories.FindBySlug(ctx, input.Category)
		switch {
		case err == nil:
			listing.CurrentCategory = category
		case errors.Is(err, repository.ErrCategoryNotFound):
			listing.CategoryFound = false
		default:
			return nil, err
		}
	}

	return listing, nil
}

func (s *catalogService) ProductDetail(ctx context.Context, slug string) (*ProductPage, error) {
	product, err := s.products.FindActiveBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	page := &ProductPage{Product: product}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		page.Images, err = s.images.ListByProduct(gctx, product.ID)
		return err
	})
	g.Go(func() (err error) {
		page.Variants, err = s.variants.ListActiveByProduct(gctx, product.ID)
		return err
	})
	g.Go(func() (err error) {
		page.Categories, err = s.categories.ForProduct(gctx, product.ID)
		return err
	})
	g.Go(func() (err error) {
		page.Related, err = s.products.Related(gctx, product.ID, relatedLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load product page: %w", err)
	}

	if len(page.Images) == 0 {
		page.Images = []*domain.ProductImage{fallbackImage(product)}
	}
	page.VariantGroups = domain.GroupVariants(page.Variants)

	data, err := s.structuredData(product, page.Images)
	if err != nil {
		return nil, err
	}
	page.StructuredData = data

	return page, nil
}

// fallbackImage uses the product's own image, or the placeholder.
func fallbackImage(product *domain.Product) *domain.ProductImage {
	filename := product.Image
	if filename == "" {
		filename = PlaceholderImage
	}
	return &domain.ProductImage{
		ID:        uuid.Nil,
		ProductID: product.ID,
		Filename:  filename,
		AltText:   product.Name,
		IsPrimary: true,
	}
}

// ImageFor returns the image to show on product cards.
func ImageFor(product *domain.Product) string {
	if product.Image != "" {
		return product.Image
	}
	return PlaceholderImage
}

type jsonLDOffer struct {
	Type          string `json:"@type"`
	URL           string `json:"url"`
	PriceCurrency string `json:"priceCurrency"`
	Price         string `json:"price"`
	Availability  string `json:"availability"`
}

type jsonLDProduct struct {
	Context     string      `json:"@context"`
	Type        string      `json:"@type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Image       []string    `json:"image"`
	SKU         string      `json:"sku,omitempty"`
	Brand       jsonLDBrand `json:"brand"`
	Offers      jsonLDOffer `json:"offers"`
}

type jsonLDBrand struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

func (s *catalogService) structuredData(product *domain.Product, images []*domain.ProductImage) (string, error) {
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = s.absoluteURL(img.Filename)
	}

	availability := "https://schema.org/OutOfStock"
	if product.InStock() {
		availability = "https://schema.org/InStock"
	}

	ld := jsonLDProduct{
		Context:     "https://schema.org/",
		Type:        "Product",
		Name:        product.Name,
		Description: product.Description,
		Image:       urls,
		SKU:         product.SKU,
		Brand:       jsonLDBrand{Type: "Brand", Name: s.cfg.StoreName},
		Offers: jsonLDOffer{
			Type:          "Offer",
			URL:           s.absoluteURL("/products/" + product.Slug),
			PriceCurrency: s.cfg.Currency,
			Price:         product.Price.StringFixed(2),
			Availability:  availability,
		},
	}

	data, err := json.Marshal(ld)
	if err != nil {
		return "", fmt.Errorf("failed to encode structured data: %w", err)
	}
	return string(data), nil
}

func (s *catalogService) absoluteURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.cfg.BaseURL + path
}

func (s *catalogService) Variants(ctx context.Context, slug string) ([]*domain.ProductVariant, error) {
	product, err := s.products.FindActiveBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.variants.ListActiveByProduct(ctx, product.ID)
}

func (s *catalogService) Search(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	result := &SearchResult{Query: query, Products: []*domain.Product{}}
	if len([]rune(query)) < repository.MinSearchLength {
		return result, nil
	}

	products, err := s.products.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	result.Products = products
	return result, nil
}

func (s *catalogService) Categories(ctx context.Context) ([]*domain.Category, error) {
	return s.categories.ListActive(ctx)
}
