package transport

import (
	"errors"
	"net/http"
	"net/url"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type sortOption struct {
	Value repository.ProductSort
	Label string
}

var sortOptions = []sortOption{
	{repository.SortNewest, "Mais recentes"},
	{repository.SortFeatured, "Destaques"},
	{repository.SortPriceAsc, "Menor preço"},
	{repository.SortPriceDesc, "Maior preço"},
	{repository.SortNameAsc, "Nome (A-Z)"},
}

type productsPage struct {
	*service.ProductListing
	Category    string
	SortOptions []sortOption
	PageBase    string
}

// CatalogHandler serves the public pages: home, static pages, listing,
// product detail and search.
type CatalogHandler struct {
	catalog service.CatalogService
	render  *Renderer
	logger  *zap.Logger
}

func NewCatalogHandler(catalog service.CatalogService, render *Renderer, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		render:  render,
		logger:  logger,
	}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Home)
	r.Get("/contact", h.Contact)
	r.Get("/faq", h.FAQ)
	r.Get("/search", h.Search)
	r.Get("/products", h.Products)
	r.Get("/products/{slug}", h.Product)
	r.Get("/products/{slug}/variants", h.Variants)
}

func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	home, err := h.catalog.Home(r.Context())
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "home", &View{
		Description: "Pelúcias artesanais, chaveiros, camisetas e receitas de crochê.",
		Data:        home,
	})
}

func (h *CatalogHandler) Contact(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, http.StatusOK, "contact", &View{Title: "Contato"})
}

func (h *CatalogHandler) FAQ(w http.ResponseWriter, r *http.Request) {
	h.render.HTML(w, r, http.StatusOK, "faq", &View{Title: "Perguntas frequentes"})
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	result, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	title := "Buscar"
	if result.Query != "" {
		title = "Busca: " + result.Query
	}
	h.render.HTML(w, r, http.StatusOK, "search", &View{Title: title, Query: result.Query, Data: result})
}

func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := h.catalog.ListProducts(r.Context(), service.ListInput{
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     pageParam(q),
	})
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	if !listing.CategoryFound {
		h.render.NotFound(w, r)
		return
	}

	title := "Produtos"
	if listing.CurrentCategory != nil {
		title = listing.CurrentCategory.Name
	}

	base := url.Values{}
	if c := q.Get("category"); c != "" {
		base.Set("category", c)
	}
	base.Set("sort", string(listing.Sort))

	h.render.HTML(w, r, http.StatusOK, "products", &View{
		Title: title,
		Data: productsPage{
			ProductListing: listing,
			Category:       q.Get("category"),
			SortOptions:    sortOptions,
			PageBase:       "/products?" + base.Encode(),
		},
	})
}

func (h *CatalogHandler) Product(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.ProductDetail(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, repository.ErrProductNotFound) {
		h.render.NotFound(w, r)
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	description := page.Product.MetaDescription
	if description == "" {
		description = page.Product.Description
	}
	title := page.Product.MetaTitle
	if title == "" {
		title = page.Product.Name
	}
	h.render.HTML(w, r, http.StatusOK, "product", &View{Title: title, Description: description, Data: page})
}

// Variants answers the variant picker with the active variants of a product.
func (h *CatalogHandler) Variants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.catalog.Variants(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, repository.ErrProductNotFound) {
		middleware.RespondWithError(w, http.StatusNotFound, "produto não encontrado")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load variants", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "erro ao carregar variações")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"variants": variants})
}
