package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	service    AdminService
	users      *mockUserRepository
	products   *mockProductRepository
	categories *mockCategoryRepository
	images     *mockImageRepository
	orders     *mockOrderRepository
	disk       *memoryDisk
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		users:      newMockUserRepository(),
		products:   newMockProductRepository(),
		categories: newMockCategoryRepository(),
		images:     &mockImageRepository{},
		orders:     newMockOrderRepository(),
		disk:       newMemoryDisk(),
	}
	f.products.images = f.images
	f.service = NewAdminService(AdminRepositories{
		Users:      f.users,
		Products:   f.products,
		Categories: f.categories,
		Images:     f.images,
		Orders:     f.orders,
	}, f.disk)
	return f
}

func productInput(name string) ProductInput {
	return ProductInput{
		Name:           name,
		Price:          "89,90",
		ComparePrice:   "99.90",
		Stock:          "7",
		Active:         true,
		TrackInventory: true,
	}
}

func TestAdmin_Dashboard(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	f.users.users["a@x.com"] = &domain.User{ID: uuid.New(), Email: "a@x.com", Role: domain.RoleAdmin}
	f.users.users["c@x.com"] = &domain.User{ID: uuid.New(), Email: "c@x.com", Role: domain.RoleCustomer}
	f.products.add(newProduct("Pouco Estoque", "10.00", 2))
	f.products.add(newProduct("Muito Estoque", "10.00", 50))

	paid := &domain.Order{ID: uuid.New(), Total: decimal.RequireFromString("100.50"), PaymentStatus: domain.PaymentStatusPaid, CreatedAt: time.Now()}
	pending := &domain.Order{ID: uuid.New(), Total: decimal.RequireFromString("30.00"), PaymentStatus: domain.PaymentStatusPending, CreatedAt: time.Now()}
	require.NoError(t, f.orders.CreateWithItems(ctx, paid, nil))
	require.NoError(t, f.orders.CreateWithItems(ctx, pending, nil))

	dash, err := f.service.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Stats.TotalProducts)
	assert.Equal(t, 1, dash.Stats.TotalUsers)
	assert.Equal(t, 2, dash.Stats.TotalOrders)
	assert.Equal(t, "100.50", dash.Stats.TotalRevenue.StringFixed(2))
	require.Len(t, dash.LowStock, 1)
	assert.Equal(t, "Pouco Estoque", dash.LowStock[0].Name)
	assert.Len(t, dash.RecentOrders, 2)
}

func TestAdmin_CreateProduct(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	category := &domain.Category{ID: uuid.New(), Name: "Pelúcias", Slug: "pelucias", Active: true}
	require.NoError(t, f.categories.Create(ctx, category))

	input := productInput("Pelúcia Coração")
	input.CategoryIDs = []string{category.ID.String()}
	upload := &ImageUpload{Reader: strings.NewReader("png-bytes"), Filename: "heart.png", ContentType: "image/png", Size: 9}

	product, err := f.service.CreateProduct(ctx, input, upload)
	require.NoError(t, err)

	assert.Equal(t, "pelucia-coracao", product.Slug)
	assert.Equal(t, "89.90", product.Price.StringFixed(2))
	assert.True(t, product.ComparePrice.Valid)
	assert.False(t, product.Cost.Valid)
	assert.Equal(t, 7, product.Stock)
	assert.Equal(t, 10, product.DiscountPercent())

	ids, err := f.products.CategoryIDs(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{category.ID}, ids)

	require.Len(t, f.disk.objects, 1)
	for key, data := range f.disk.objects {
		assert.True(t, strings.HasPrefix(key, "products/"+product.ID.String()+"/"))
		assert.True(t, strings.HasSuffix(key, ".png"))
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "/uploads/"+key, product.Image)
	}
	require.Len(t, f.images.images, 1)
	assert.True(t, f.images.images[0].IsPrimary)
	assert.Equal(t, product.Image, f.images.images[0].Filename)
}

func TestAdmin_CreateProductValidation(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ProductInput)
		upload *ImageUpload
		field  string
	}{
		{"missing name", func(in *ProductInput) { in.Name = " " }, nil, "name"},
		{"bad price", func(in *ProductInput) { in.Price = "abc" }, nil, "price"},
		{"negative price", func(in *ProductInput) { in.Price = "-1" }, nil, "price"},
		{"fractional stock", func(in *ProductInput) { in.Stock = "1.5" }, nil, "stock"},
		{"negative stock", func(in *ProductInput) { in.Stock = "-3" }, nil, "stock"},
		{"bad category", func(in *ProductInput) { in.CategoryIDs = []string{"x"} }, nil, "categories"},
		{"unslugable name", func(in *ProductInput) { in.Name = "!!!" }, nil, "slug"},
		{"not an image", func(in *ProductInput) {}, &ImageUpload{Reader: strings.NewReader("x"), ContentType: "text/plain"}, "image"},
		{"image too large", func(in *ProductInput) {}, &ImageUpload{Reader: strings.NewReader("x"), ContentType: "image/jpeg", Size: MaxImageSize + 1}, "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := productInput("Produto Válido")
			tt.mutate(&input)
			_, err := f.service.CreateProduct(ctx, input, tt.upload)
			formErr, ok := AsFormError(err)
			require.True(t, ok, "expected form error, got %v", err)
			assert.Contains(t, formErr.Fields, tt.field)
		})
	}

	count, err := f.products.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.disk.objects)
}

func TestAdmin_ProductSlugConflictAndUpdate(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	first, err := f.service.CreateProduct(ctx, productInput("Chaveiro Kiki"), nil)
	require.NoError(t, err)
	_, err = f.service.CreateProduct(ctx, productInput("Chaveiro  Kiki"), nil)
	formErr, ok := AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "slug")

	input := productInput("Chaveiro Kiki Novo")
	input.Slug = "kiki"
	input.Stock = "0"
	input.Active = false
	updated, err := f.service.UpdateProduct(ctx, first.ID, input, nil)
	require.NoError(t, err)
	assert.Equal(t, "kiki", updated.Slug)
	assert.Equal(t, 0, updated.Stock)
	assert.False(t, updated.Active)

	_, err = f.service.UpdateProduct(ctx, uuid.New(), input, nil)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	form, err := f.service.ProductForm(ctx, &first.ID)
	require.NoError(t, err)
	assert.Equal(t, "kiki", form.Product.Slug)

	blank, err := f.service.ProductForm(ctx, nil)
	require.NoError(t, err)
	assert.True(t, blank.Product.Active)
	assert.Empty(t, blank.Selected)

	require.NoError(t, f.service.DeleteProduct(ctx, first.ID))
	stored, err := f.products.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestAdmin_UploadFailureCreatesNothing(t *testing.T) {
	f := newAdminFixture()
	f.disk.putErr = errors.New("disk full")
	ctx := context.Background()

	upload := &ImageUpload{Reader: strings.NewReader("x"), ContentType: "image/webp", Size: 1}
	_, err := f.service.CreateProduct(ctx, productInput("Ecobag Lisa"), upload)
	formErr, ok := AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "image")
	assert.ErrorContains(t, errors.Unwrap(err), "disk full")
	assert.Empty(t, f.images.images)
	assert.Empty(t, f.products.products)

	// The same form goes through once storage is back.
	f.disk.putErr = nil
	upload = &ImageUpload{Reader: strings.NewReader("x"), ContentType: "image/webp", Size: 1}
	product, err := f.service.CreateProduct(ctx, productInput("Ecobag Lisa"), upload)
	require.NoError(t, err)
	assert.Equal(t, "ecobag-lisa", product.Slug)
	require.Len(t, f.images.images, 1)
	assert.Equal(t, product.Image, f.images.images[0].Filename)
	assert.Len(t, f.disk.objects, 1)
}

func TestAdmin_FailedCreateRemovesStoredImage(t *testing.T) {
	f := newAdminFixture()
	f.products.createErr = repository.ErrProductSlugTaken
	ctx := context.Background()

	upload := &ImageUpload{Reader: strings.NewReader("x"), ContentType: "image/png", Size: 1}
	_, err := f.service.CreateProduct(ctx, productInput("Ecobag Lisa"), upload)
	formErr, ok := AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "slug")
	assert.Empty(t, f.disk.objects)
	assert.Empty(t, f.images.images)
}

func TestAdmin_UpdateUploadFailureLeavesProductUntouched(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	product, err := f.service.CreateProduct(ctx, productInput("Ecobag Lisa"), nil)
	require.NoError(t, err)

	f.disk.putErr = errors.New("disk full")
	input := productInput("Ecobag Estampada")
	upload := &ImageUpload{Reader: strings.NewReader("x"), ContentType: "image/png", Size: 1}
	_, err = f.service.UpdateProduct(ctx, product.ID, input, upload)
	_, ok := AsFormError(err)
	require.True(t, ok)

	stored, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ecobag Lisa", stored.Name)
}

func TestAdmin_Orders(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	order := &domain.Order{ID: uuid.New(), Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending, CreatedAt: time.Now()}
	item := &domain.OrderItem{ID: uuid.New(), Quantity: 1}
	require.NoError(t, f.orders.CreateWithItems(ctx, order, []*domain.OrderItem{item}))

	list, err := f.service.ListOrders(ctx, "bogus", 0)
	require.NoError(t, err)
	assert.Equal(t, "all", list.Status)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, domain.OrderStatuses, list.Statuses)

	assert.ErrorIs(t, f.service.UpdateOrderStatus(ctx, order.ID, "lost", ""), ErrInvalidOrderStatus)
	assert.ErrorIs(t, f.service.UpdateOrderStatus(ctx, order.ID, "", ""), ErrInvalidOrderStatus)
	require.NoError(t, f.service.UpdateOrderStatus(ctx, order.ID, "shipped", ""))
	require.NoError(t, f.service.UpdateOrderStatus(ctx, order.ID, "", "paid"))

	detail, err := f.service.OrderDetail(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, detail.Status)
	assert.Equal(t, domain.PaymentStatusPaid, detail.PaymentStatus)
	assert.Len(t, detail.Items, 1)

	list, err = f.service.ListOrders(ctx, "pending", 1)
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	assert.ErrorIs(t, f.service.UpdateOrderStatus(ctx, uuid.New(), "shipped", ""), repository.ErrOrderNotFound)
}

func TestAdmin_UpdateOrderStatusRejectsMixedInput(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	order := &domain.Order{ID: uuid.New(), Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending, CreatedAt: time.Now()}
	require.NoError(t, f.orders.CreateWithItems(ctx, order, nil))

	assert.ErrorIs(t, f.service.UpdateOrderStatus(ctx, order.ID, "shipped", "bogus"), ErrInvalidOrderStatus)
	assert.ErrorIs(t, f.service.UpdateOrderStatus(ctx, order.ID, "lost", "paid"), ErrInvalidOrderStatus)

	detail, err := f.service.OrderDetail(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, detail.Status)
	assert.Equal(t, domain.PaymentStatusPending, detail.PaymentStatus)
}

func TestAdmin_Categories(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	parent, err := f.service.CreateCategory(ctx, CategoryInput{Name: "Personagens", Active: true, SortOrder: "2"})
	require.NoError(t, err)
	assert.Equal(t, "personagens", parent.Slug)
	assert.Equal(t, 2, parent.SortOrder)

	child, err := f.service.CreateCategory(ctx, CategoryInput{Name: "Ghibli", ParentID: parent.ID.String(), Active: true})
	require.NoError(t, err)
	assert.True(t, child.ParentID.Valid)
	assert.Equal(t, parent.ID, child.ParentID.UUID)

	_, err = f.service.CreateCategory(ctx, CategoryInput{Name: "Ghibli", Active: true})
	formErr, ok := AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "slug")

	_, err = f.service.CreateCategory(ctx, CategoryInput{Name: "X"})
	formErr, ok = AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "name")

	_, err = f.service.UpdateCategory(ctx, parent.ID, CategoryInput{Name: "Personagens", ParentID: parent.ID.String()})
	formErr, ok = AsFormError(err)
	require.True(t, ok)
	assert.Contains(t, formErr.Fields, "parentId")

	form, err := f.service.CategoryForm(ctx, &child.ID)
	require.NoError(t, err)
	require.Len(t, form.Parents, 1)
	assert.Equal(t, parent.ID, form.Parents[0].ID)

	form, err = f.service.CategoryForm(ctx, &parent.ID)
	require.NoError(t, err)
	assert.Empty(t, form.Parents)

	updated, err := f.service.UpdateCategory(ctx, child.ID, CategoryInput{Name: "Studio Ghibli", Active: false})
	require.NoError(t, err)
	assert.Equal(t, "studio-ghibli", updated.Slug)
	assert.False(t, updated.ParentID.Valid)

	f.categories.inUse[parent.ID] = true
	assert.ErrorIs(t, f.service.DeleteCategory(ctx, parent.ID), repository.ErrCategoryHasProducts)
	require.NoError(t, f.service.DeleteCategory(ctx, child.ID))

	all, err := f.service.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
