package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LowStockThreshold = 5
	dashboardListSize = 10
	// MaxImageSize bounds product image uploads.
	MaxImageSize = 5 << 20
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProductInput is the admin product form. Numbers arrive as text and accept
// a decimal comma.
type ProductInput struct {
	Name            string   `form:"name" validate:"required,min=2,max=200" msg:"Nome deve ter entre 2 e 200 caracteres"`
	Slug            string   `form:"slug" validate:"max=200" msg:"Slug muito longo"`
	Description     string   `form:"description" validate:"max=5000" msg:"Descrição muito longa"`
	Price           string   `form:"price" validate:"required,numeric" msg:"Preço inválido"`
	ComparePrice    string   `form:"comparePrice" validate:"omitempty,numeric" msg:"Preço comparativo inválido"`
	Cost            string   `form:"cost" validate:"omitempty,numeric" msg:"Custo inválido"`
	SKU             string   `form:"sku" validate:"max=100" msg:"SKU muito longo"`
	Stock           string   `form:"stock" validate:"required,number" msg:"Estoque deve ser um número inteiro"`
	Weight          string   `form:"weight" validate:"omitempty,numeric" msg:"Peso inválido"`
	Active          bool     `form:"active"`
	Featured        bool     `form:"featured"`
	TrackInventory  bool     `form:"trackInventory"`
	AllowBackorder  bool     `form:"allowBackorder"`
	MetaTitle       string   `form:"metaTitle" validate:"max=200" msg:"Meta título muito longo"`
	MetaDescription string   `form:"metaDescription" validate:"max=500" msg:"Meta descrição muito longa"`
	CategoryIDs     []string `form:"categories"`
}

// CategoryInput is the admin category form.
type CategoryInput struct {
	Name        string `form:"name" validate:"required,min=2,max=100" msg:"Nome deve ter entre 2 e 100 caracteres"`
	Slug        string `form:"slug" validate:"max=100" msg:"Slug muito longo"`
	Description string `form:"description" validate:"max=1000" msg:"Descrição muito longa"`
	ParentID    string `form:"parentId" validate:"omitempty,uuid" msg:"Categoria pai inválida"`
	Active      bool   `form:"active"`
	SortOrder   string `form:"sortOrder" validate:"omitempty,number" msg:"Ordem deve ser um número"`
}

// ImageUpload is an uploaded product picture.
type ImageUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

type Dashboard struct {
	Stats        domain.DashboardStats
	LowStock     []*domain.Product
	RecentOrders []*domain.Order
}

type AdminProductList struct {
	Products   []*domain.Product
	Total      int
	Page       int
	TotalPages int
}

type ProductForm struct {
	Product    *domain.Product
	Categories []*domain.Category
	Selected   map[uuid.UUID]bool
	Images     []*domain.ProductImage
}

type AdminOrderList struct {
	Orders     []*domain.Order
	Total      int
	Page       int
	TotalPages int
	Status     string
	Statuses   []domain.OrderStatus
}

type CategoryForm struct {
	Category *domain.Category
	Parents  []*domain.Category
}

// AdminService backs the back-office pages
type AdminService interface {
	Dashboard(ctx context.Context) (*Dashboard, error)

	ListProducts(ctx context.Context, page int) (*AdminProductList, error)
	ProductForm(ctx context.Context, id *uuid.UUID) (*ProductForm, error)
	CreateProduct(ctx context.Context, input ProductInput, upload *ImageUpload) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput, upload *ImageUpload) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListOrders(ctx context.Context, status string, page int) (*AdminOrderList, error)
	OrderDetail(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// UpdateOrderStatus changes the order and payment status together. An
	// empty value leaves that column unchanged.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, paymentStatus string) error

	ListCategories(ctx context.Context) ([]*domain.Category, error)
	CategoryForm(ctx context.Context, id *uuid.UUID) (*CategoryForm, error)
	CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
}

// AdminRepositories groups the repositories the back office writes to.
type AdminRepositories struct {
	Users      repository.UserRepository
	Products   repository.ProductRepository
	Categories repository.CategoryRepository
	Images     repository.ImageRepository
	Orders     repository.OrderRepository
}

type adminService struct {
	repos AdminRepositories
	disk  storage.Disk
	now   func() time.Time
}

func NewAdminService(repos AdminRepositories, disk storage.Disk) AdminService {
	return &adminService{
		repos: repos,
		disk:  disk,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *adminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d   Dashboard
		err error
	)

	if d.Stats.TotalProducts, err = s.repos.Products.CountActive(ctx); err != nil {
		return nil, err
	}
	if d.Stats.TotalUsers, err = s.repos.Users.CountCustomers(ctx); err != nil {
		return nil, err
	}
	if d.Stats.TotalOrders, err = s.repos.Orders.CountAll(ctx); err != nil {
		return nil, err
	}
	if d.Stats.TotalRevenue, err = s.repos.Orders.PaidRevenue(ctx); err != nil {
		return nil, err
	}
	if d.LowStock, err = s.repos.Products.LowStock(ctx, LowStockThreshold, dashboardListSize); err != nil {
		return nil, err
	}
	if d.RecentOrders, err = s.repos.Orders.Recent(ctx, dashboardListSize); err != nil {
		return nil, err
	}

	return &d, nil
}

func (s *adminService) ListProducts(ctx context.Context, page int) (*AdminProductList, error) {
	if page < 1 {
		page = 1
	}
	products, total, err := s.repos.Products.AdminList(ctx, repository.Page{Number: page, Size: repository.AdminPageSize})
	if err != nil {
		return nil, err
	}
	return &AdminProductList{
		Products:   products,
		Total:      total,
		Page:       page,
		TotalPages: repository.TotalPages(total, repository.AdminPageSize),
	}, nil
}

// ProductForm prepares the new (id == nil) or edit product form.
func (s *adminService) ProductForm(ctx context.Context, id *uuid.UUID) (*ProductForm, error) {
	categories, err := s.repos.Categories.ListWithCounts(ctx)
	if err != nil {
		return nil, err
	}

	form := &ProductForm{
		Product:    &domain.Product{Active: true, TrackInventory: true},
		Categories: categories,
		Selected:   map[uuid.UUID]bool{},
	}
	if id == nil {
		return form, nil
	}

	if form.Product, err = s.repos.Products.FindByID(ctx, *id); err != nil {
		return nil, err
	}
	selected, err := s.repos.Products.CategoryIDs(ctx, *id)
	if err != nil {
		return nil, err
	}
	for _, categoryID := range selected {
		form.Selected[categoryID] = true
	}
	if form.Images, err = s.repos.Images.ListByProduct(ctx, *id); err != nil {
		return nil, err
	}

	return form, nil
}

func parseAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

func parseOptionalAmount(raw string) decimal.NullDecimal {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(parseAmount(raw))
}

func normalizeNumber(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
}

// buildProduct validates input and copies it onto product.
func buildProduct(product *domain.Product, input ProductInput) ([]uuid.UUID, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Price = normalizeNumber(input.Price)
	input.ComparePrice = normalizeNumber(input.ComparePrice)
	input.Cost = normalizeNumber(input.Cost)
	input.Weight = normalizeNumber(input.Weight)
	input.Stock = strings.TrimSpace(input.Stock)
	if err := validateForm(input); err != nil {
		return nil, err
	}

	price := parseAmount(input.Price)
	if price.IsNegative() {
		return nil, fieldError("price", "Preço inválido")
	}
	stock, err := strconv.Atoi(input.Stock)
	if err != nil || stock < 0 {
		return nil, fieldError("stock", "Estoque deve ser um número inteiro")
	}

	categoryIDs := make([]uuid.UUID, 0, len(input.CategoryIDs))
	for _, raw := range input.CategoryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fieldError("categories", "Categoria inválida")
		}
		categoryIDs = append(categoryIDs, id)
	}

	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(input.Name)
	}
	if slug == "" {
		return nil, fieldError("slug", "Não foi possível gerar o slug a partir do nome")
	}

	product.Name = input.Name
	product.Slug = slug
	product.Description = strings.TrimSpace(input.Description)
	product.Price = price
	product.ComparePrice = parseOptionalAmount(input.ComparePrice)
	product.Cost = parseOptionalAmount(input.Cost)
	product.SKU = strings.TrimSpace(input.SKU)
	product.Stock = stock
	product.Weight = parseOptionalAmount(input.Weight)
	product.Active = input.Active
	product.Featured = input.Featured
	product.TrackInventory = input.TrackInventory
	product.AllowBackorder = input.AllowBackorder
	product.MetaTitle = strings.TrimSpace(input.MetaTitle)
	product.MetaDescription = strings.TrimSpace(input.MetaDescription)

	return categoryIDs, nil
}

func mapProductWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrProductSlugTaken):
		return fieldError("slug", "Já existe um produto com este slug")
	case errors.Is(err, repository.ErrUnknownCategoryLinks):
		return fieldError("categories", "Categoria inválida")
	default:
		return err
	}
}

func (s *adminService) CreateProduct(ctx context.Context, input ProductInput, upload *ImageUpload) (*domain.Product, error) {
	now := s.now()
	product := &domain.Product{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}

	categoryIDs, err := buildProduct(product, input)
	if err != nil {
		return nil, err
	}
	if err := checkUpload(upload); err != nil {
		return nil, err
	}

	var image *domain.ProductImage
	var key string
	if upload != nil {
		if image, key, err = s.storeImage(ctx, product, upload); err != nil {
			return nil, err
		}
		product.Image = image.Filename
	}

	if err := s.repos.Products.CreateWithImage(ctx, product, categoryIDs, image); err != nil {
		if image != nil {
			_ = s.disk.Delete(ctx, key)
		}
		return nil, mapProductWriteError(err)
	}
	return product, nil
}

func (s *adminService) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput, upload *ImageUpload) (*domain.Product, error) {
	product, err := s.repos.Products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	categoryIDs, err := buildProduct(product, input)
	if err != nil {
		return nil, err
	}
	if err := checkUpload(upload); err != nil {
		return nil, err
	}

	var image *domain.ProductImage
	var key string
	if upload != nil {
		if image, key, err = s.storeImage(ctx, product, upload); err != nil {
			return nil, err
		}
	}

	product.UpdatedAt = s.now()
	if err := s.repos.Products.Update(ctx, product, categoryIDs); err != nil {
		if image != nil {
			_ = s.disk.Delete(ctx, key)
		}
		return nil, mapProductWriteError(err)
	}

	if image != nil {
		if err := s.linkImage(ctx, product, image, key); err != nil {
			return nil, err
		}
	}
	return product, nil
}

func checkUpload(upload *ImageUpload) error {
	if upload == nil {
		return nil
	}
	if _, ok := imageExtensions[upload.ContentType]; !ok {
		return fieldError("image", "Envie uma imagem JPG, PNG, WEBP ou GIF")
	}
	if upload.Size > MaxImageSize {
		return fieldError("image", "Imagem deve ter no máximo 5MB")
	}
	return nil
}

// storeImage puts the upload on the disk and returns the primary image row
// that points at it. A storage failure is reported on the image field.
func (s *adminService) storeImage(ctx context.Context, product *domain.Product, upload *ImageUpload) (*domain.ProductImage, string, error) {
	key := path.Join("products", product.ID.String(), uuid.NewString()+imageExtensions[upload.ContentType])
	if err := s.disk.Put(ctx, key, upload.Reader, upload.ContentType); err != nil {
		return nil, "", &FormError{
			Fields: map[string]string{"image": "Não foi possível salvar a imagem. Tente novamente."},
			cause:  fmt.Errorf("failed to store product image: %w", err),
		}
	}

	return &domain.ProductImage{
		ID:        uuid.New(),
		ProductID: product.ID,
		Filename:  s.disk.URL(key),
		AltText:   product.Name,
		IsPrimary: true,
		CreatedAt: s.now(),
	}, key, nil
}

// linkImage makes a stored image the primary image of an existing product.
func (s *adminService) linkImage(ctx context.Context, product *domain.Product, image *domain.ProductImage, key string) error {
	if err := s.repos.Images.Create(ctx, image); err != nil {
		_ = s.disk.Delete(ctx, key)
		return err
	}
	if err := s.repos.Products.SetImage(ctx, product.ID, image.Filename); err != nil {
		return err
	}
	product.Image = image.Filename
	return nil
}

func (s *adminService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.repos.Products.SoftDelete(ctx, id)
}

func (s *adminService) ListOrders(ctx context.Context, status string, page int) (*AdminOrderList, error) {
	if page < 1 {
		page = 1
	}
	if status != "" && status != "all" && !domain.OrderStatus(status).Valid() {
		status = "all"
	}

	orders, total, err := s.repos.Orders.AdminList(ctx, status, repository.Page{Number: page, Size: repository.AdminPageSize})
	if err != nil {
		return nil, err
	}

	return &AdminOrderList{
		Orders:     orders,
		Total:      total,
		Page:       page,
		TotalPages: repository.TotalPages(total, repository.AdminPageSize),
		Status:     status,
		Statuses:   domain.OrderStatuses,
	}, nil
}

func (s *adminService) OrderDetail(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repos.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Items, err = s.repos.Orders.Items(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *adminService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, paymentStatus string) error {
	st, ps := domain.OrderStatus(status), domain.PaymentStatus(paymentStatus)
	if (st == "" && ps == "") || (st != "" && !st.Valid()) || (ps != "" && !ps.Valid()) {
		return ErrInvalidOrderStatus
	}
	return s.repos.Orders.UpdateStatus(ctx, id, st, ps)
}

func (s *adminService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.repos.Categories.ListWithCounts(ctx)
}

// CategoryForm lists root categories as parent choices, leaving out the
// category being edited.
func (s *adminService) CategoryForm(ctx context.Context, id *uuid.UUID) (*CategoryForm, error) {
	all, err := s.repos.Categories.ListWithCounts(ctx)
	if err != nil {
		return nil, err
	}

	form := &CategoryForm{Category: &domain.Category{Active: true}}
	if id != nil {
		if form.Category, err = s.repos.Categories.FindByID(ctx, *id); err != nil {
			return nil, err
		}
	}

	for _, c := range all {
		if !c.ParentID.Valid && c.ID != form.Category.ID {
			form.Parents = append(form.Parents, c)
		}
	}
	return form, nil
}

func buildCategory(category *domain.Category, input CategoryInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.ParentID = strings.TrimSpace(input.ParentID)
	input.SortOrder = strings.TrimSpace(input.SortOrder)
	if err := validateForm(input); err != nil {
		return err
	}

	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(input.Name)
	}
	if slug == "" {
		return fieldError("slug", "Não foi possível gerar o slug a partir do nome")
	}

	var parentID uuid.NullUUID
	if input.ParentID != "" {
		parent, _ := uuid.Parse(input.ParentID)
		if parent == category.ID {
			return fieldError("parentId", "Uma categoria não pode ser pai de si mesma")
		}
		parentID = uuid.NullUUID{UUID: parent, Valid: true}
	}

	sortOrder := 0
	if input.SortOrder != "" {
		sortOrder, _ = strconv.Atoi(input.SortOrder)
	}

	category.ParentID = parentID
	category.SortOrder = sortOrder
	category.Name = input.Name
	category.Slug = slug
	category.Description = strings.TrimSpace(input.Description)
	category.Active = input.Active
	return nil
}

func mapCategoryWriteError(err error) error {
	if errors.Is(err, repository.ErrCategoryAlreadyExists) {
		return fieldError("slug", "Já existe uma categoria com este slug")
	}
	return err
}

func (s *adminService) CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error) {
	category := &domain.Category{ID: uuid.New(), CreatedAt: s.now()}
	if err := buildCategory(category, input); err != nil {
		return nil, err
	}
	if err := s.repos.Categories.Create(ctx, category); err != nil {
		return nil, mapCategoryWriteError(err)
	}
	return category, nil
}

func (s *adminService) UpdateCategory(ctx context.Context, id uuid.UUID, input CategoryInput) (*domain.Category, error) {
	category, err := s.repos.Categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := buildCategory(category, input); err != nil {
		return nil, err
	}
	if err := s.repos.Categories.Update(ctx, category); err != nil {
		return nil, mapCategoryWriteError(err)
	}
	return category, nil
}

func (s *adminService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.repos.Categories.Delete(ctx, id)
}
