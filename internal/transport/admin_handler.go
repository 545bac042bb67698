package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxProductFormBytes bounds product form bodies: one image plus the text fields.
const maxProductFormBytes = service.MaxImageSize + 1<<20

type productFormPage struct {
	Product    *domain.Product
	Categories []*domain.Category
	Images     []*domain.ProductImage
	Selected   map[string]bool
	Action     string
	IsNew      bool
}

type categoryFormPage struct {
	Category *domain.Category
	Parents  []*domain.Category
	Action   string
	IsNew    bool
}

// AdminHandler serves the back office. Routes are mounted behind the login
// and admin guards by RegisterRoutes.
type AdminHandler struct {
	admin  service.AdminService
	render *Renderer
	logger *zap.Logger
}

func NewAdminHandler(admin service.AdminService, render *Renderer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		render: render,
		logger: logger,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(guards...)
		r.Get("/", h.Dashboard)

		r.Route("/products", func(r chi.Router) {
			r.Use(middleware.RequestSize(maxProductFormBytes))
			r.Get("/", h.Products)
			r.Get("/new", h.NewProduct)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}/edit", h.EditProduct)
			r.Post("/{id}", h.UpdateProduct)
			r.Post("/{id}/delete", h.DeleteProduct)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders)
			r.Get("/{id}", h.Order)
			r.Post("/{id}/status", h.UpdateOrderStatus)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.Categories)
			r.Get("/new", h.NewCategory)
			r.Post("/", h.CreateCategory)
			r.Get("/{id}/edit", h.EditCategory)
			r.Post("/{id}", h.UpdateCategory)
			r.Post("/{id}/delete", h.DeleteCategory)
		})
	})
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.admin.Dashboard(r.Context())
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "admin/dashboard", &View{Title: "Painel", Data: dashboard})
}

func (h *AdminHandler) Products(w http.ResponseWriter, r *http.Request) {
	list, err := h.admin.ListProducts(r.Context(), pageParam(r.URL.Query()))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "admin/products", &View{Title: "Produtos", Data: list})
}

func (h *AdminHandler) NewProduct(w http.ResponseWriter, r *http.Request) {
	form, err := h.admin.ProductForm(r.Context(), nil)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.renderProductForm(w, r, http.StatusOK, form, productInputFrom(form.Product, form.Selected), nil)
}

func (h *AdminHandler) EditProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	form, err := h.admin.ProductForm(r.Context(), &id)
	if errors.Is(err, repository.ErrProductNotFound) {
		h.render.NotFound(w, r)
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.renderProductForm(w, r, http.StatusOK, form, productInputFrom(form.Product, form.Selected), nil)
}

func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input service.ProductInput
	if err := decodeForm(r, &input); err != nil {
		h.badForm(w, r, err)
		return
	}
	upload, closeUpload, err := imageUpload(r)
	if err != nil {
		h.badForm(w, r, err)
		return
	}
	defer closeUpload()

	product, err := h.admin.CreateProduct(r.Context(), input, upload)
	if err != nil {
		h.productWriteFailed(w, r, nil, input, err)
		return
	}

	h.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("slug", product.Slug))
	session.FromContext(r.Context()).Flash(session.FlashSuccess, "Produto criado com sucesso!")
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var input service.ProductInput
	if err := decodeForm(r, &input); err != nil {
		h.badForm(w, r, err)
		return
	}
	upload, closeUpload, err := imageUpload(r)
	if err != nil {
		h.badForm(w, r, err)
		return
	}
	defer closeUpload()

	if _, err := h.admin.UpdateProduct(r.Context(), id, input, upload); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			h.render.NotFound(w, r)
			return
		}
		h.productWriteFailed(w, r, &id, input, err)
		return
	}

	session.FromContext(r.Context()).Flash(session.FlashSuccess, "Produto atualizado com sucesso!")
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	sess := session.FromContext(r.Context())
	switch err := h.admin.DeleteProduct(r.Context(), id); {
	case err == nil:
		sess.Flash(session.FlashSuccess, "Produto removido da loja.")
	case errors.Is(err, repository.ErrProductNotFound):
		sess.Flash(session.FlashError, "Produto não encontrado.")
	default:
		h.render.ServerError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *AdminHandler) productWriteFailed(w http.ResponseWriter, r *http.Request, id *uuid.UUID, input service.ProductInput, err error) {
	fe, ok := service.AsFormError(err)
	if !ok {
		h.render.ServerError(w, r, err)
		return
	}
	if cause := errors.Unwrap(fe); cause != nil {
		h.logger.Warn("Product image not stored", zap.Error(cause))
	}

	form, loadErr := h.admin.ProductForm(r.Context(), id)
	if loadErr != nil {
		h.render.ServerError(w, r, loadErr)
		return
	}
	h.renderProductForm(w, r, http.StatusUnprocessableEntity, form, input, fe.Fields)
}

func (h *AdminHandler) renderProductForm(w http.ResponseWriter, r *http.Request, status int, form *service.ProductForm, input service.ProductInput, errs map[string]string) {
	page := productFormPage{
		Product:    form.Product,
		Categories: form.Categories,
		Images:     form.Images,
		Selected:   make(map[string]bool, len(input.CategoryIDs)),
		IsNew:      form.Product.ID == uuid.Nil,
	}
	for _, id := range input.CategoryIDs {
		page.Selected[id] = true
	}

	title := "Editar produto"
	page.Action = "/admin/products/" + form.Product.ID.String()
	if page.IsNew {
		title = "Novo produto"
		page.Action = "/admin/products"
	}

	h.render.HTML(w, r, status, "admin/product_form", &View{Title: title, Form: input, Errors: errs, Data: page})
}

// productInputFrom fills the form fields from a stored product.
func productInputFrom(p *domain.Product, selected map[uuid.UUID]bool) service.ProductInput {
	input := service.ProductInput{
		Name:            p.Name,
		Slug:            p.Slug,
		Description:     p.Description,
		SKU:             p.SKU,
		Stock:           strconv.Itoa(p.Stock),
		Active:          p.Active,
		Featured:        p.Featured,
		TrackInventory:  p.TrackInventory,
		AllowBackorder:  p.AllowBackorder,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
	}
	if p.ID != uuid.Nil {
		input.Price = p.Price.StringFixed(2)
	}
	if p.ComparePrice.Valid {
		input.ComparePrice = p.ComparePrice.Decimal.StringFixed(2)
	}
	if p.Cost.Valid {
		input.Cost = p.Cost.Decimal.StringFixed(2)
	}
	if p.Weight.Valid {
		input.Weight = p.Weight.Decimal.String()
	}
	for id := range selected {
		input.CategoryIDs = append(input.CategoryIDs, id.String())
	}
	return input
}

// imageUpload returns the optional "image" file of a multipart form.
func imageUpload(r *http.Request) (*service.ImageUpload, func(), error) {
	noop := func() {}
	if r.MultipartForm == nil {
		return nil, noop, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	if header.Size == 0 {
		file.Close()
		return nil, noop, nil
	}

	// The type is sniffed from the content; the part header is client supplied.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		file.Close()
		return nil, noop, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, noop, err
	}

	return &service.ImageUpload{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: http.DetectContentType(head[:n]),
		Size:        header.Size,
	}, func() { file.Close() }, nil
}

func (h *AdminHandler) Orders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.admin.ListOrders(r.Context(), q.Get("status"), pageParam(q))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "admin/orders", &View{Title: "Pedidos", Data: list})
}

type adminOrderPage struct {
	Order           *domain.Order
	Statuses        []domain.OrderStatus
	PaymentStatuses []domain.PaymentStatus
}

func (h *AdminHandler) Order(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	order, err := h.admin.OrderDetail(r.Context(), id)
	if errors.Is(err, repository.ErrOrderNotFound) {
		h.render.NotFound(w, r)
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "admin/order", &View{
		Title: "Pedido " + order.OrderNumber,
		Data: adminOrderPage{
			Order:    order,
			Statuses: domain.OrderStatuses,
			PaymentStatuses: domain.PaymentStatuses,
		},
	})
}

func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}

	err := h.admin.UpdateOrderStatus(r.Context(), id, r.PostForm.Get("status"), r.PostForm.Get("paymentStatus"))

	sess := session.FromContext(r.Context())
	switch {
	case err == nil:
		sess.Flash(session.FlashSuccess, "Status do pedido atualizado!")
	case errors.Is(err, service.ErrInvalidOrderStatus):
		sess.Flash(session.FlashError, "Status inválido.")
	case errors.Is(err, repository.ErrOrderNotFound):
		h.render.NotFound(w, r)
		return
	default:
		h.render.ServerError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin/orders/"+id.String(), http.StatusSeeOther)
}

func (h *AdminHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.admin.ListCategories(r.Context())
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.HTML(w, r, http.StatusOK, "admin/categories", &View{Title: "Categorias", Data: categories})
}

func (h *AdminHandler) NewCategory(w http.ResponseWriter, r *http.Request) {
	form, err := h.admin.CategoryForm(r.Context(), nil)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.renderCategoryForm(w, r, http.StatusOK, form, categoryInputFrom(form.Category), nil)
}

func (h *AdminHandler) EditCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	form, err := h.admin.CategoryForm(r.Context(), &id)
	if errors.Is(err, repository.ErrCategoryNotFound) {
		h.render.NotFound(w, r)
		return
	}
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.renderCategoryForm(w, r, http.StatusOK, form, categoryInputFrom(form.Category), nil)
}

func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input service.CategoryInput
	if err := decodeForm(r, &input); err != nil {
		h.badForm(w, r, err)
		return
	}

	if _, err := h.admin.CreateCategory(r.Context(), input); err != nil {
		h.categoryWriteFailed(w, r, nil, input, err)
		return
	}

	session.FromContext(r.Context()).Flash(session.FlashSuccess, "Categoria criada com sucesso!")
	http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
}

func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var input service.CategoryInput
	if err := decodeForm(r, &input); err != nil {
		h.badForm(w, r, err)
		return
	}

	if _, err := h.admin.UpdateCategory(r.Context(), id, input); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			h.render.NotFound(w, r)
			return
		}
		h.categoryWriteFailed(w, r, &id, input, err)
		return
	}

	session.FromContext(r.Context()).Flash(session.FlashSuccess, "Categoria atualizada com sucesso!")
	http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
}

func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	sess := session.FromContext(r.Context())
	switch err := h.admin.DeleteCategory(r.Context(), id); {
	case err == nil:
		sess.Flash(session.FlashSuccess, "Categoria excluída.")
	case errors.Is(err, repository.ErrCategoryHasProducts):
		sess.Flash(session.FlashError, "Não é possível excluir uma categoria com produtos.")
	case errors.Is(err, repository.ErrCategoryNotFound):
		sess.Flash(session.FlashError, "Categoria não encontrada.")
	default:
		h.render.ServerError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
}

func (h *AdminHandler) categoryWriteFailed(w http.ResponseWriter, r *http.Request, id *uuid.UUID, input service.CategoryInput, err error) {
	fe, ok := service.AsFormError(err)
	if !ok {
		h.render.ServerError(w, r, err)
		return
	}

	form, loadErr := h.admin.CategoryForm(r.Context(), id)
	if loadErr != nil {
		h.render.ServerError(w, r, loadErr)
		return
	}
	h.renderCategoryForm(w, r, http.StatusUnprocessableEntity, form, input, fe.Fields)
}

func (h *AdminHandler) renderCategoryForm(w http.ResponseWriter, r *http.Request, status int, form *service.CategoryForm, input service.CategoryInput, errs map[string]string) {
	page := categoryFormPage{
		Category: form.Category,
		Parents:  form.Parents,
		IsNew:    form.Category.ID == uuid.Nil,
	}

	title := "Editar categoria"
	page.Action = "/admin/categories/" + form.Category.ID.String()
	if page.IsNew {
		title = "Nova categoria"
		page.Action = "/admin/categories"
	}

	h.render.HTML(w, r, status, "admin/category_form", &View{Title: title, Form: input, Errors: errs, Data: page})
}

func categoryInputFrom(c *domain.Category) service.CategoryInput {
	input := service.CategoryInput{
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Active:      c.Active,
		SortOrder:   strconv.Itoa(c.SortOrder),
	}
	if c.ParentID.Valid {
		input.ParentID = c.ParentID.UUID.String()
	}
	return input
}

func (h *AdminHandler) idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.render.NotFound(w, r)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) badForm(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.render.HTML(w, r, http.StatusRequestEntityTooLarge, "error", &View{
			Title: "Arquivo muito grande",
			Data:  errorPage{Status: http.StatusRequestEntityTooLarge, Message: "Imagem deve ter no máximo 5MB"},
		})
		return
	}
	h.logger.Debug("Unreadable admin form", zap.Error(err))
	h.render.HTML(w, r, http.StatusBadRequest, "error", &View{
		Title: "Requisição inválida",
		Data:  errorPage{Status: http.StatusBadRequest, Message: "Não foi possível ler o formulário."},
	})
}
