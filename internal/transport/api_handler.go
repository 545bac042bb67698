package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type productListResponse struct {
	Products   []*domain.Product `json:"products"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Sort       string            `json:"sort"`
}

type productDetailResponse struct {
	Product    *domain.Product        `json:"product"`
	Images     []*domain.ProductImage `json:"images"`
	Variants   []domain.VariantGroup  `json:"variants"`
	Categories []*domain.Category     `json:"categories"`
	Related    []*domain.Product      `json:"related"`
}

type shippingQuoteRequest struct {
	PostalCode string `json:"postal_code" validate:"required"`
}

type shippingQuoteResponse struct {
	PostalCode string                  `json:"postal_code"`
	Options    []domain.ShippingOption `json:"options"`
}

// CatalogAPIHandler exposes the catalog and shipping quotes as JSON.
type CatalogAPIHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewCatalogAPIHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogAPIHandler {
	return &CatalogAPIHandler{catalog: catalog, logger: logger}
}

func (h *CatalogAPIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/products/{slug}", h.GetProduct)
	r.Get("/categories", h.ListCategories)
	r.Post("/shipping/quote", h.QuoteShipping)
}

func (h *CatalogAPIHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := h.catalog.ListProducts(r.Context(), service.ListInput{
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     pageParam(q),
	})
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if !listing.CategoryFound {
		middleware.RespondWithError(w, http.StatusNotFound, "category not found")
		return
	}

	products := listing.Products
	if products == nil {
		products = []*domain.Product{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, productListResponse{
		Products:   products,
		Total:      listing.Total,
		Page:       listing.Page,
		TotalPages: listing.TotalPages,
		Sort:       string(listing.Sort),
	})
}

func (h *CatalogAPIHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ProductDetail(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, repository.ErrProductNotFound) {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, productDetailResponse{
		Product:    page.Product,
		Images:     page.Images,
		Variants:   page.VariantGroups,
		Categories: page.Categories,
		Related:    page.Related,
	})
}

func (h *CatalogAPIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if categories == nil {
		categories = []*domain.Category{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// QuoteShipping is stateless: the quote is not stored in any session.
func (h *CatalogAPIHandler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingQuoteRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cep, err := service.NormalizePostalCode(req.PostalCode)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "postal code must have 8 digits")
		return
	}
	options, err := service.QuoteShipping(cep)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "postal code must have 8 digits")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, shippingQuoteResponse{PostalCode: cep, Options: options})
}
